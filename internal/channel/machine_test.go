// ABOUTME: Tests for the channel state machine
// ABOUTME: Covers fallback thresholds, anti-thrash, rate limits, and status derivation
package channel

import (
	"testing"
	"time"

	"github.com/nomad-pi/nomad-display/internal/resolver"
)

func testAddr() *resolver.ServerAddress {
	return &resolver.ServerAddress{
		Host:   "192.168.1.50",
		Port:   8000,
		Source: resolver.NameService,
	}
}

func TestLinkDownGoesIdle(t *testing.T) {
	m := NewMachine()
	now := time.Now()

	m.OnResolved(testAddr())
	m.OnPushConnected(now)
	if m.State() != StatePushActive {
		t.Fatalf("expected push active, got %s", m.State())
	}

	acts := m.Tick(now, false, false)
	if !acts.TeardownPush {
		t.Error("expected push teardown on link loss")
	}
	if m.State() != StateIdle {
		t.Errorf("expected idle on link loss, got %s", m.State())
	}
}

func TestResolveRetryBackoff(t *testing.T) {
	m := NewMachine()
	now := time.Now()

	acts := m.Tick(now, true, false)
	if !acts.Resolve {
		t.Fatal("expected immediate resolve on first tick")
	}
	m.OnResolved(nil)

	// Within the retry window: no new attempt.
	acts = m.Tick(now.Add(5*time.Second), true, false)
	if acts.Resolve {
		t.Error("resolve attempted inside the retry window")
	}
	if m.State() != StateIdle {
		t.Errorf("expected idle while waiting, got %s", m.State())
	}

	// After the window: retry.
	acts = m.Tick(now.Add(16*time.Second), true, false)
	if !acts.Resolve {
		t.Error("expected resolve after the retry window")
	}
}

func TestDirtyForcesImmediateReresolve(t *testing.T) {
	m := NewMachine()
	now := time.Now()

	m.Tick(now, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(now)

	acts := m.Tick(now.Add(time.Second), true, true)
	if !acts.TeardownPush {
		t.Error("expected teardown before switching address")
	}
	if !acts.Resolve {
		t.Error("expected immediate re-resolution on dirty discovery")
	}
	if m.Addr() != nil {
		t.Error("expected active address cleared on dirty discovery")
	}
}

func TestPushStaleFallsBackToPolling(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(start)

	// 40s with no receipt; threshold is 30s.
	now := start.Add(40 * time.Second)
	acts := m.Tick(now, true, false)

	if !acts.TeardownPush {
		t.Error("expected stale push torn down")
	}
	if !acts.StartPoll {
		t.Error("expected polling to begin after fallback threshold")
	}
	if m.State() == StatePushActive {
		t.Error("expected to leave PushActive")
	}
}

func TestAntiThrashSuppressesPushWhilePollingFresh(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(start)

	// Fall back.
	now := start.Add(40 * time.Second)
	m.Tick(now, true, false)

	// First poll succeeds.
	now = now.Add(time.Second)
	m.OnPollResult(now, true)

	// While polls stay fresh, no push attempt, and the channel is Online.
	for i := 0; i < 5; i++ {
		now = now.Add(5 * time.Second)
		acts := m.Tick(now, true, false)
		if acts.StartPush {
			t.Fatalf("push attempted %ds after poll success", (i+1)*5)
		}
		m.OnPollResult(now, true)
		if m.State() != StatePollActive {
			t.Fatalf("expected PollActive, got %s", m.State())
		}
		if m.Status() != StatusOnline {
			t.Fatalf("expected Online while polling, got %s", m.Status())
		}
	}

	// Polling goes stale: push attempts resume.
	now = now.Add(35 * time.Second)
	acts := m.Tick(now, true, false)
	if !acts.StartPush {
		t.Error("expected push attempt once polling went stale")
	}
}

func TestScenarioPushStaleFirstPollSuppresses(t *testing.T) {
	// Push with last success 40s ago starts polling; the first poll succeeds,
	// and the next push attempt stays suppressed for at least one more cycle.
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(start)

	now := start.Add(40 * time.Second)
	acts := m.Tick(now, true, false)
	if !acts.StartPoll {
		t.Fatal("expected polling to start")
	}

	now = now.Add(500 * time.Millisecond)
	m.OnPollResult(now, true)

	now = now.Add(5 * time.Second)
	acts = m.Tick(now, true, false)
	if acts.StartPush {
		t.Error("push attempt not suppressed after successful poll")
	}
	if !acts.StartPoll {
		t.Error("expected polling to continue at cadence")
	}
}

func TestPushAttemptRateLimit(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())

	now := start.Add(time.Second)
	acts := m.Tick(now, true, false)
	if !acts.StartPush {
		t.Fatal("expected initial push attempt")
	}

	// Attempts inside the spacing window are suppressed.
	for _, d := range []time.Duration{1 * time.Second, 5 * time.Second, 14 * time.Second} {
		acts := m.Tick(now.Add(d), true, false)
		if acts.StartPush {
			t.Errorf("push attempt allowed %v after the previous one", d)
		}
	}

	acts = m.Tick(now.Add(16*time.Second), true, false)
	if !acts.StartPush {
		t.Error("expected push attempt after the spacing window")
	}
}

func TestNewAddressResetsPushRateLimit(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.Tick(start.Add(time.Second), true, false) // consumes the attempt

	other := &resolver.ServerAddress{Host: "192.168.1.77", Port: 9090, Source: resolver.BroadcastDiscovery}
	m.OnResolved(other)

	acts := m.Tick(start.Add(2*time.Second), true, false)
	if !acts.StartPush {
		t.Error("expected immediate push attempt against a new address")
	}
}

func TestPollCadence(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())

	now := start.Add(time.Second)
	acts := m.Tick(now, true, false)
	if !acts.StartPoll {
		t.Fatal("expected initial poll")
	}

	acts = m.Tick(now.Add(2*time.Second), true, false)
	if acts.StartPoll {
		t.Error("poll started inside the cadence window")
	}

	acts = m.Tick(now.Add(6*time.Second), true, false)
	if !acts.StartPoll {
		t.Error("expected poll after the cadence window")
	}
}

func TestApplyRateLimit(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())

	now := start.Add(time.Second)
	m.OnPayload()
	acts := m.Tick(now, true, false)
	if !acts.ApplyPayload {
		t.Fatal("expected first payload applied")
	}
	m.OnApplied(now, true)

	// A burst arriving 100ms later waits.
	m.OnPayload()
	acts = m.Tick(now.Add(100*time.Millisecond), true, false)
	if acts.ApplyPayload {
		t.Error("payload applied inside the 250ms window")
	}

	acts = m.Tick(now.Add(300*time.Millisecond), true, false)
	if !acts.ApplyPayload {
		t.Error("expected payload applied after the window")
	}
}

func TestFailedAfterProlongedSilence(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(start)
	m.OnPushClosed()

	// Over a minute with nothing.
	now := start.Add(70 * time.Second)
	m.Tick(now, true, false)

	if m.State() != StateFailed {
		t.Errorf("expected Failed after prolonged silence, got %s", m.State())
	}
	if m.Status() != StatusError {
		t.Errorf("expected Error status, got %s", m.Status())
	}

	// Failure drops the address so resolution runs again.
	if m.Addr() != nil {
		t.Error("expected address dropped for re-resolution")
	}
}

func TestStatusDerivation(t *testing.T) {
	m := NewMachine()
	now := time.Now()

	if m.Status() != StatusDisconnected {
		t.Errorf("expected Disconnected when idle, got %s", m.Status())
	}

	m.Tick(now, true, false)
	if m.Status() != StatusConnecting {
		t.Errorf("expected Connecting while resolving, got %s", m.Status())
	}

	m.OnResolved(testAddr())
	m.OnPushConnected(now)
	if m.Status() != StatusOnline {
		t.Errorf("expected Online in PushActive, got %s", m.Status())
	}
}

func TestMalformedPayloadKeepsSuccessClock(t *testing.T) {
	m := NewMachine()
	start := time.Now()

	m.Tick(start, true, false)
	m.OnResolved(testAddr())
	m.OnPushConnected(start)

	applied := start.Add(time.Second)
	m.OnPayload()
	m.OnApplied(applied, true)

	// A malformed payload advances the apply clock, not the success clock.
	bad := applied.Add(time.Second)
	m.OnPayload()
	m.OnApplied(bad, false)

	if !m.LastSuccess().Equal(applied) {
		t.Errorf("expected last success unchanged by malformed payload")
	}
}
