// ABOUTME: Live-channel state machine with push/poll fallback and anti-thrash rules
// ABOUTME: Pure transition logic; transports and clocks are driven from outside
package channel

import (
	"log"
	"time"

	"github.com/nomad-pi/nomad-display/internal/resolver"
)

// State is the channel lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePushActive
	StatePollActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePushActive:
		return "push"
	case StatePollActive:
		return "poll"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the UI-facing connection status derived from the state machine,
// never from raw transport internals.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOnline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusConnecting:
		return "Connecting"
	case StatusError:
		return "Error"
	default:
		return "Disconnected"
	}
}

// Tuning constants. Hand-tuned on the original device; kept as named
// constants rather than an adaptive policy.
const (
	// resolveRetry spaces resolution attempts while no address is known or
	// the channel has failed.
	resolveRetry = 15 * time.Second

	// pushAttemptSpacing rate-limits push-connect attempts per address.
	pushAttemptSpacing = 15 * time.Second

	// pushStaleAfter is the fallback threshold: with no successful receipt
	// for this long, push is torn down and polling takes over. It is also
	// the anti-thrash window: push attempts stay suppressed while a poll
	// succeeded more recently than this.
	pushStaleAfter = 30 * time.Second

	// pollInterval is the fallback poll cadence.
	pollInterval = 5 * time.Second

	// pollActiveWindow is how recent a poll success must be for the channel
	// to count as PollActive rather than Connecting.
	pollActiveWindow = 15 * time.Second

	// failedAfter moves the channel to Failed (and eventually back through
	// re-resolution) when nothing has succeeded for this long.
	failedAfter = 60 * time.Second

	// applyMinInterval bounds parse+apply work under payload bursts.
	applyMinInterval = 250 * time.Millisecond
)

// Actions is what the transition function asks the transport layer to do
// this tick.
type Actions struct {
	Resolve      bool
	StartPush    bool
	StartPoll    bool
	TeardownPush bool
	ApplyPayload bool
}

// Machine is the channel state machine. Not safe for concurrent use; the
// scheduling loop is its only driver.
type Machine struct {
	state State
	addr  *resolver.ServerAddress

	pushUp      bool
	havePayload bool

	lastSuccess     time.Time // any successful parse+apply or push connect
	lastPollSuccess time.Time
	lastPushAttempt time.Time
	lastResolve     time.Time
	lastPollStart   time.Time
	lastApply       time.Time
}

// NewMachine creates an idle machine.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return m.state
}

// Addr returns the active address, if any.
func (m *Machine) Addr() *resolver.ServerAddress {
	return m.addr
}

// Status derives the UI status from the lifecycle state.
func (m *Machine) Status() Status {
	switch m.state {
	case StatePushActive, StatePollActive:
		return StatusOnline
	case StateConnecting:
		return StatusConnecting
	case StateFailed:
		return StatusError
	default:
		return StatusDisconnected
	}
}

// LastSuccess returns when the channel last delivered usable data.
func (m *Machine) LastSuccess() time.Time {
	return m.lastSuccess
}

// Tick is the single transition function. It inspects the clock and the
// recorded event timestamps and returns the transport actions for this tick.
func (m *Machine) Tick(now time.Time, linkUp, dirty bool) Actions {
	var acts Actions

	if !linkUp {
		if m.pushUp {
			acts.TeardownPush = true
			m.pushUp = false
		}
		m.setState(StateIdle)
		return acts
	}

	if dirty {
		// A discovery announcement changed the candidate address. Tear down
		// any open channel before switching; the next resolution is
		// immediate.
		if m.pushUp {
			acts.TeardownPush = true
			m.pushUp = false
		}
		m.addr = nil
		m.lastResolve = time.Time{}
		m.setState(StateIdle)
	}

	if m.addr == nil {
		if m.lastResolve.IsZero() || now.Sub(m.lastResolve) >= resolveRetry {
			m.lastResolve = now
			acts.Resolve = true
			m.setState(StateConnecting)
		} else {
			m.setState(StateIdle)
		}
		return acts
	}

	if m.havePayload && (m.lastApply.IsZero() || now.Sub(m.lastApply) >= applyMinInterval) {
		acts.ApplyPayload = true
	}

	if m.pushUp {
		if !m.lastSuccess.IsZero() && now.Sub(m.lastSuccess) > pushStaleAfter {
			// Push went quiet. Clean teardown, then the poll path below
			// takes over on the next ticks.
			acts.TeardownPush = true
			m.pushUp = false
			m.setState(StateConnecting)
		} else {
			m.setState(StatePushActive)
			return acts
		}
	}

	// Poll cadence while push is down.
	if m.lastPollStart.IsZero() || now.Sub(m.lastPollStart) >= pollInterval {
		m.lastPollStart = now
		acts.StartPoll = true
	}

	switch {
	case !m.lastPollSuccess.IsZero() && now.Sub(m.lastPollSuccess) <= pollActiveWindow:
		m.setState(StatePollActive)
	case !m.lastSuccess.IsZero() && now.Sub(m.lastSuccess) > failedAfter:
		m.setState(StateFailed)
	default:
		m.setState(StateConnecting)
	}

	// Repeated failure sends us back through resolution; a later Tick with
	// addr == nil issues the Resolve action.
	if m.state == StateFailed && now.Sub(m.lastResolve) >= resolveRetry {
		m.addr = nil
		return acts
	}

	// Anti-thrash: while polling succeeds, do not thrash the push endpoint.
	pollFresh := !m.lastPollSuccess.IsZero() && now.Sub(m.lastPollSuccess) < pushStaleAfter
	if !pollFresh && (m.lastPushAttempt.IsZero() || now.Sub(m.lastPushAttempt) >= pushAttemptSpacing) {
		m.lastPushAttempt = now
		acts.StartPush = true
	}

	return acts
}

// OnResolved records a resolution result. A nil address means every source
// came up empty this attempt.
func (m *Machine) OnResolved(addr *resolver.ServerAddress) {
	if addr == nil {
		m.setState(StateIdle)
		return
	}

	if m.addr == nil || m.addr.Host != addr.Host || m.addr.Port != addr.Port {
		// New endpoint: the per-address push rate limit starts over.
		m.lastPushAttempt = time.Time{}
	}
	m.addr = addr
	m.setState(StateConnecting)
}

// OnPushConnected records the transport's explicit connected event.
func (m *Machine) OnPushConnected(now time.Time) {
	m.pushUp = true
	m.lastSuccess = now
	m.setState(StateConnecting)
	m.setState(StatePushActive)
}

// OnPushClosed records a push teardown or failure. The last-good snapshot is
// never cleared here; the store keeps it.
func (m *Machine) OnPushClosed() {
	if !m.pushUp {
		return
	}
	m.pushUp = false
	m.setState(StateConnecting)
}

// OnPayload records that a raw payload is buffered and waiting for the
// rate-limited apply.
func (m *Machine) OnPayload() {
	m.havePayload = true
}

// OnApplied records a parse+apply outcome. The apply timestamp advances even
// on failure so malformed bursts cannot spin the parser.
func (m *Machine) OnApplied(now time.Time, ok bool) {
	m.havePayload = false
	m.lastApply = now
	if ok {
		m.lastSuccess = now
	}
}

// OnPollResult records a poll outcome. Successful polls refresh both the
// shared last-success clock and the anti-thrash window.
func (m *Machine) OnPollResult(now time.Time, ok bool) {
	if ok {
		m.lastPollSuccess = now
		m.lastSuccess = now
	}
}

func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	log.Printf("Channel state: %s -> %s", m.state, s)
	m.state = s
}
