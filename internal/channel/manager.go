// ABOUTME: Live channel manager driving the push/poll state machine with real transports
// ABOUTME: Stepped once per scheduler tick; the sole producer of Store applies
package channel

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nomad-pi/nomad-display/internal/protocol"
	"github.com/nomad-pi/nomad-display/internal/resolver"
)

// Manager owns the live data channel. It is driven from the scheduling loop
// via Step and applies decoded envelopes through the supplied callback, so
// all store writes happen on the scheduler goroutine.
type Manager struct {
	machine *Machine
	res     *resolver.Resolver
	dirty   <-chan struct{}
	apply   func(protocol.Envelope)

	clientID string

	push       *pushClient
	pushGen    int
	pushEvents chan pushEvent

	poll      *poller
	pollCh    chan pollResult
	polling   bool
	resolveCh chan *resolver.ServerAddress
	resolving bool

	pending []byte

	now func() time.Time
}

// NewManager creates a channel manager. dirty may be nil when broadcast
// discovery is disabled; apply receives every accepted envelope.
func NewManager(res *resolver.Resolver, dirty <-chan struct{}, apply func(protocol.Envelope)) *Manager {
	return &Manager{
		machine:    NewMachine(),
		res:        res,
		dirty:      dirty,
		apply:      apply,
		clientID:   uuid.New().String(),
		pushEvents: make(chan pushEvent, 16),
		poll:       newPoller(),
		pollCh:     make(chan pollResult, 4),
		resolveCh:  make(chan *resolver.ServerAddress, 1),
		now:        time.Now,
	}
}

// Status returns the derived UI connection status.
func (m *Manager) Status() Status {
	return m.machine.Status()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return m.machine.State()
}

// ActiveAddress returns the address the channel is bound to, if any.
func (m *Manager) ActiveAddress() *resolver.ServerAddress {
	return m.machine.Addr()
}

// Usable reports whether the channel delivered data recently enough for
// one-shot commands to be worth sending.
func (m *Manager) Usable() bool {
	last := m.machine.LastSuccess()
	return !last.IsZero() && m.now().Sub(last) <= pushStaleAfter
}

// Step advances the channel once. Called every scheduler tick with the
// current link state.
func (m *Manager) Step(linkUp bool) {
	now := m.now()

	m.drainEvents()

	dirty := false
	if m.dirty != nil {
		select {
		case <-m.dirty:
			dirty = true
		default:
		}
	}

	acts := m.machine.Tick(now, linkUp, dirty)

	if acts.TeardownPush {
		m.teardownPush()
	}

	if acts.Resolve && !m.resolving {
		m.resolving = true
		go func() {
			m.resolveCh <- m.res.Resolve()
		}()
	}

	if acts.ApplyPayload && m.pending != nil {
		data := m.pending
		m.pending = nil
		m.machine.OnApplied(now, m.applyEnvelope(data))
	}

	if addr := m.machine.Addr(); addr != nil {
		if acts.StartPush && m.push == nil {
			m.pushGen++
			m.push = newPushClient(addr.HostPort(), m.clientID, m.pushGen, m.pushEvents)
			m.push.Start()
		}

		if acts.StartPoll && !m.polling {
			m.polling = true
			hostPort := addr.HostPort()
			go func() {
				data, err := m.poll.fetch(hostPort)
				m.pollCh <- pollResult{addr: hostPort, data: data, err: err}
			}()
		}
	}
}

// Close tears down any open transport.
func (m *Manager) Close() {
	m.teardownPush()
}

// drainEvents consumes pending transport results without blocking. Results
// from superseded push generations are discarded.
func (m *Manager) drainEvents() {
	now := m.now()

	for {
		select {
		case addr := <-m.resolveCh:
			m.resolving = false
			m.machine.OnResolved(addr)

		case ev := <-m.pushEvents:
			if ev.gen != m.pushGen {
				continue // abandoned attempt; ignore, never block on it
			}
			switch ev.kind {
			case pushConnected:
				log.Printf("Push channel connected")
				m.machine.OnPushConnected(now)
			case pushPayload:
				m.pending = ev.payload
				m.machine.OnPayload()
			case pushClosed:
				if ev.err != nil {
					log.Printf("Push channel closed: %v", ev.err)
				}
				m.push = nil
				m.machine.OnPushClosed()
			}

		case res := <-m.pollCh:
			m.polling = false
			addr := m.machine.Addr()
			if addr == nil || res.addr != addr.HostPort() {
				continue // poll against a superseded address; ignore
			}
			if res.err != nil {
				log.Printf("Poll failed: %v", res.err)
				m.machine.OnPollResult(now, false)
				continue
			}
			m.machine.OnPollResult(now, m.applyEnvelope(res.data))

		default:
			return
		}
	}
}

// applyEnvelope parses and applies one payload. A malformed payload is
// dropped; the previous dashboard state stays untouched and the next
// scheduled update supersedes it.
func (m *Manager) applyEnvelope(data []byte) bool {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Dropping malformed payload (%d bytes): %v", len(data), err)
		return false
	}
	if m.apply != nil {
		m.apply(env)
	}
	return true
}

func (m *Manager) teardownPush() {
	if m.push != nil {
		m.push.Close()
		m.push = nil
	}
	// Bump the generation so late events from the old client are ignored.
	m.pushGen++
}
