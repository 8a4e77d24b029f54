// ABOUTME: Tests for the channel manager's transport event handling
// ABOUTME: Covers discarding of results from superseded addresses and attempts
package channel

import (
	"encoding/json"
	"testing"

	"github.com/nomad-pi/nomad-display/internal/protocol"
	"github.com/nomad-pi/nomad-display/internal/resolver"
)

func testEnvelope(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(protocol.Envelope{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestStalePollResultIgnored(t *testing.T) {
	applied := 0
	m := NewManager(nil, nil, func(protocol.Envelope) { applied++ })
	m.machine.OnResolved(&resolver.ServerAddress{Host: "192.168.1.99", Port: 8000})

	// A poll fired at the previous binding completes after the switch.
	m.pollCh <- pollResult{addr: "192.168.1.9:8000", data: testEnvelope(t)}
	m.drainEvents()

	if applied != 0 {
		t.Error("envelope from a superseded address was applied")
	}
	if !m.machine.lastPollSuccess.IsZero() {
		t.Error("superseded poll refreshed the success clock")
	}

	// The same result against the active address is accepted.
	m.pollCh <- pollResult{addr: "192.168.1.99:8000", data: testEnvelope(t)}
	m.drainEvents()

	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if m.machine.lastPollSuccess.IsZero() {
		t.Error("expected success clock refreshed by the active address")
	}
}

func TestPollResultWithNoAddressIgnored(t *testing.T) {
	applied := 0
	m := NewManager(nil, nil, func(protocol.Envelope) { applied++ })

	m.pollCh <- pollResult{addr: "192.168.1.9:8000", data: testEnvelope(t)}
	m.drainEvents()

	if applied != 0 {
		t.Error("envelope applied with no active address")
	}
}

func TestStalePushEventIgnored(t *testing.T) {
	applied := 0
	m := NewManager(nil, nil, func(protocol.Envelope) { applied++ })
	m.machine.OnResolved(&resolver.ServerAddress{Host: "192.168.1.99", Port: 8000})

	// Teardown bumps the generation; events from the old client are late.
	oldGen := m.pushGen
	m.teardownPush()

	m.pushEvents <- pushEvent{kind: pushPayload, gen: oldGen, payload: testEnvelope(t)}
	m.pushEvents <- pushEvent{kind: pushConnected, gen: oldGen}
	m.drainEvents()

	if m.machine.pushUp {
		t.Error("stale connected event marked push up")
	}
	if m.pending != nil {
		t.Error("stale payload buffered for apply")
	}
}
