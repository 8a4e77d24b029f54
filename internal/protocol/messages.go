// ABOUTME: Wire type definitions for the Nomad Pi dashboard feed
// ABOUTME: Covers the telemetry envelope, discovery broadcasts, and session commands
package protocol

// Well-known paths and ports on the Nomad Pi server. The push and poll
// endpoints return the same envelope shape.
const (
	PushPath    = "/api/dashboard/ws"
	PollPath    = "/api/dashboard/public"
	CommandPath = "/api/dashboard/session/%s/command"

	DiscoveryPort = 8001

	// HotspotSSID is the server's self-hosted access point. While associated
	// to it the server is always reachable at HotspotHost:DefaultPort.
	HotspotSSID = "NomadPi"
	HotspotHost = "10.42.0.1"
	DefaultPort = 8000

	// MDNSService is the service type the server advertises on external
	// networks.
	MDNSService = "_nomadpi._tcp"
)

// Envelope is the telemetry payload delivered over both the push and poll
// channels.
type Envelope struct {
	Sessions []Session `json:"sessions"`
	System   System    `json:"system"`
}

// Session describes one active playback session.
type Session struct {
	SessionID   string  `json:"session_id"`
	Username    string  `json:"username"`
	MediaType   string  `json:"media_type"`
	Title       string  `json:"title"`
	PosterURL   string  `json:"poster_url,omitempty"`
	PosterThumb string  `json:"poster_thumb,omitempty"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	State       string  `json:"state"` // playing, paused, stopped, buffering
	Bitrate     int64   `json:"bitrate,omitempty"`
}

// Poster returns the preferred artwork URL for the session. The server sends
// a pre-scaled thumbnail when it has one.
func (s Session) Poster() string {
	if s.PosterThumb != "" {
		return s.PosterThumb
	}
	return s.PosterURL
}

// System describes server health metrics.
type System struct {
	CPUPercent     float64 `json:"cpu_percent"`
	RAMPercent     float64 `json:"ram_percent"`
	DiskPercent    float64 `json:"disk_percent"`
	ActiveUsers    int     `json:"active_users"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	NetworkDownBps int64   `json:"network_down_bps"`
	NetworkUpBps   int64   `json:"network_up_bps"`
}

// Announcement is the unauthenticated UDP broadcast the server emits. The
// sender's source address is the candidate host.
type Announcement struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

// Valid reports whether the announcement is structurally usable.
func (a Announcement) Valid() bool {
	return a.Type == "discovery" && a.Port > 0 && a.Port <= 65535
}

// Command is the one-shot session control payload.
type Command struct {
	Action string `json:"action"`
}

// Session command actions.
const (
	ActionStop   = "stop"
	ActionPause  = "pause"
	ActionResume = "resume"
)
