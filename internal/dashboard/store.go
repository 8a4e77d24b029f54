// ABOUTME: Dashboard state store holding the latest session and system snapshots
// ABOUTME: Snapshots are replaced wholesale on apply; history advances on its own cadence
package dashboard

import (
	"sync"

	"github.com/nomad-pi/nomad-display/internal/protocol"
)

// SessionView is the decoded, clamped, display-ready playback session.
type SessionView struct {
	SessionID string
	Username  string
	MediaType string
	Title     string
	PosterURL string
	State     string

	CurrentTime float64
	Duration    float64
	Bitrate     int64

	// Derived on apply
	Elapsed      string
	Remaining    string
	Length       string
	BitrateLabel string
	Progress     float64 // 0..1
}

// Paused reports whether the session is paused, which flips the pause
// control into a resume control.
func (s SessionView) Paused() bool {
	return s.State == "paused"
}

// SystemView is the decoded server health snapshot.
type SystemView struct {
	CPUPercent  float64
	RAMPercent  float64
	DiskPercent float64
	ActiveUsers int

	UptimeSeconds  int64
	NetworkDownBps int64
	NetworkUpBps   int64

	// Derived on apply
	Uptime   string
	DownRate string
	UpRate   string
}

// Store owns the latest snapshots and the metric history rings. The channel
// manager (via the scheduling loop) is the sole writer; the mutex makes the
// single-writer rule explicit for readers on other goroutines.
type Store struct {
	mu sync.RWMutex

	session    *SessionView
	system     SystemView
	haveSystem bool

	history History
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Apply replaces both snapshots wholesale from a telemetry envelope. The
// first session in the list becomes the displayed session; an empty list
// clears it. Numeric fields are clamped before derivation.
func (s *Store) Apply(env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(env.Sessions) == 0 {
		s.session = nil
	} else {
		s.session = buildSessionView(env.Sessions[0])
	}

	s.system = buildSystemView(env.System)
	s.haveSystem = true
}

// Session returns the displayed session, if any.
func (s *Store) Session() (SessionView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return SessionView{}, false
	}
	return *s.session, true
}

// System returns the latest system snapshot, if one has arrived.
func (s *Store) System() (SystemView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system, s.haveSystem
}

// AdvanceHistory pushes the current system values into the rings. Called on
// a fixed cadence by the scheduling loop, never per apply, so the sparkline
// sample rate is independent of network jitter.
func (s *Store) AdvanceHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.CPU.Push(s.system.CPUPercent)
	s.history.RAM.Push(s.system.RAMPercent)
	s.history.NetDown.Push(float64(s.system.NetworkDownBps))
	s.history.NetUp.Push(float64(s.system.NetworkUpBps))
}

// HistorySnapshot copies the rings for rendering.
func (s *Store) HistorySnapshot() HistorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return HistorySnapshot{
		CPU:     s.history.CPU.Values(),
		RAM:     s.history.RAM.Values(),
		NetDown: s.history.NetDown.Values(),
		NetUp:   s.history.NetUp.Values(),
	}
}

func buildSessionView(in protocol.Session) *SessionView {
	cur := in.CurrentTime
	dur := in.Duration
	if cur < 0 {
		cur = 0
	}
	if dur < 0 {
		dur = 0
	}
	if dur > 0 && cur > dur {
		cur = dur
	}

	v := &SessionView{
		SessionID:   in.SessionID,
		Username:    in.Username,
		MediaType:   in.MediaType,
		Title:       in.Title,
		PosterURL:   in.Poster(),
		State:       in.State,
		CurrentTime: cur,
		Duration:    dur,
		Bitrate:     in.Bitrate,
	}

	v.Elapsed = FormatClock(int64(cur))
	v.Length = FormatClock(int64(dur))
	v.Remaining = FormatClock(int64(dur - cur))
	v.BitrateLabel = FormatBitrate(in.Bitrate)
	if dur > 0 {
		v.Progress = cur / dur
	}

	return v
}

func buildSystemView(in protocol.System) SystemView {
	down := in.NetworkDownBps
	up := in.NetworkUpBps
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}

	uptime := in.UptimeSeconds
	if uptime < 0 {
		uptime = 0
	}

	return SystemView{
		CPUPercent:     in.CPUPercent,
		RAMPercent:     in.RAMPercent,
		DiskPercent:    in.DiskPercent,
		ActiveUsers:    in.ActiveUsers,
		UptimeSeconds:  uptime,
		NetworkDownBps: down,
		NetworkUpBps:   up,
		Uptime:         FormatClock(uptime),
		DownRate:       FormatRate(down),
		UpRate:         FormatRate(up),
	}
}
