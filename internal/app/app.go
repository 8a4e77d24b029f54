// ABOUTME: Main application orchestration and scheduling loop
// ABOUTME: Drives link, channel, store, poster, and idle on one goroutine
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nomad-pi/nomad-display/internal/channel"
	"github.com/nomad-pi/nomad-display/internal/command"
	"github.com/nomad-pi/nomad-display/internal/config"
	"github.com/nomad-pi/nomad-display/internal/dashboard"
	"github.com/nomad-pi/nomad-display/internal/idle"
	"github.com/nomad-pi/nomad-display/internal/link"
	"github.com/nomad-pi/nomad-display/internal/poster"
	"github.com/nomad-pi/nomad-display/internal/protocol"
	"github.com/nomad-pi/nomad-display/internal/resolver"
	"github.com/nomad-pi/nomad-display/internal/ui"
)

const (
	// tickInterval is the scheduling cadence. Every component budget in the
	// loop is bounded well under a human-visible stall.
	tickInterval = 250 * time.Millisecond

	// historyInterval is the sparkline sample cadence, independent of how
	// often telemetry actually arrives.
	historyInterval = 2 * time.Second

	linkRefreshInterval = 5 * time.Second

	// linkConnectRetry spaces association attempts with the stored
	// credentials while the link is down.
	linkConnectRetry = 30 * time.Second

	// idleDimFraction of the configured brightness while the screensaver is
	// engaged.
	idleDimFraction = 0.15
)

// Config holds application configuration.
type Config struct {
	ServerAddr string // manual host:port override; empty enables discovery
	Interface  string // wireless interface to observe; empty assumes wired
	ConfigPath string
}

// App coordinates all components from a single scheduling goroutine. The
// per-tick order is fixed: link, channel (which applies telemetry), poster,
// idle, history, UI publish, so each stage sees the freshest upstream state.
type App struct {
	cfg   Config
	prefs *config.Store

	link     *link.Manager
	listener *resolver.Listener
	channel  *channel.Manager
	store    *dashboard.Store
	poster   *poster.Pipeline
	idle     *idle.Controller
	commands *command.Client

	controls *ui.Controls
	program  *tea.Program

	lastHistory     time.Time
	lastLinkRefresh time.Time
	lastLinkConnect time.Time
	linkRefreshing  chan struct{} // 1-slot guard
	linkConnecting  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires the application together. The TUI program is attached separately
// so headless mode can skip it.
func New(cfg Config) (*App, error) {
	prefs, err := config.Open(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:            cfg,
		prefs:          prefs,
		link:           link.NewManager(cfg.Interface),
		store:          dashboard.NewStore(),
		poster:         poster.NewPipeline(),
		commands:       command.NewClient(),
		controls:       ui.NewControls(),
		linkRefreshing: make(chan struct{}, 1),
		linkConnecting: make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
	}

	a.idle = idle.NewController(a.onIdle, a.onActive)

	var dirty <-chan struct{}
	if cfg.ServerAddr == "" {
		a.listener = resolver.NewListener(prefs)
		dirty = a.listener.Dirty()
	}

	res := resolver.New(prefs, a.listener, func() bool {
		return a.link.OnHotspot(protocol.HotspotSSID)
	})
	if cfg.ServerAddr != "" {
		host, port, err := splitHostPort(cfg.ServerAddr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid server address %q: %w", cfg.ServerAddr, err)
		}
		res.SetStatic(host, port)
	}

	a.channel = channel.NewManager(res, dirty, a.store.Apply)

	return a, nil
}

// Controls returns the UI control channels for building the TUI.
func (a *App) Controls() *ui.Controls {
	return a.controls
}

// SetProgram attaches the TUI program for state publishing.
func (a *App) SetProgram(p *tea.Program) {
	a.program = p
}

// Run is the scheduling loop. It returns when ctx is cancelled or the UI
// requests quit.
func (a *App) Run(ctx context.Context) error {
	if a.listener != nil {
		if err := a.listener.Start(); err != nil {
			// Discovery is one source of several; keep going without it.
			log.Printf("Broadcast listener unavailable: %v", err)
			a.listener = nil
		}
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer a.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.ctx.Done():
			return nil
		case <-a.controls.Quit:
			return nil
		case <-a.controls.Activity:
			a.idle.Touch()
		case cmd := <-a.controls.Commands:
			a.sendCommand(cmd.Action)
		case <-ticker.C:
			a.step()
		}
	}
}

// Stop cancels the scheduling loop.
func (a *App) Stop() {
	a.cancel()
}

func (a *App) shutdown() {
	if a.listener != nil {
		a.listener.Stop()
	}
	a.channel.Close()
	if a.program != nil {
		a.program.Quit()
	}
}

// step runs one scheduling pass.
func (a *App) step() {
	now := time.Now()

	a.maybeRefreshLink(now)

	linkUp := a.cfg.Interface == "" || a.link.State().Associated
	if !linkUp {
		a.maybeReconnectLink(now)
	}
	a.channel.Step(linkUp)

	hostPort := ""
	if addr := a.channel.ActiveAddress(); addr != nil {
		hostPort = addr.HostPort()
	}
	if session, ok := a.store.Session(); ok {
		a.poster.MaybeRefresh(session.PosterURL, hostPort)
	} else {
		a.poster.MaybeRefresh("", hostPort)
	}

	a.idle.Step()

	if _, ok := a.store.System(); ok && now.Sub(a.lastHistory) >= historyInterval {
		a.lastHistory = now
		a.store.AdvanceHistory()
	}

	a.publish()
}

// maybeRefreshLink re-reads wireless status off the loop; the iw call can
// block up to its own timeout.
func (a *App) maybeRefreshLink(now time.Time) {
	if a.cfg.Interface == "" {
		return
	}
	if now.Sub(a.lastLinkRefresh) < linkRefreshInterval {
		return
	}

	select {
	case a.linkRefreshing <- struct{}{}:
	default:
		return // previous refresh still running
	}

	a.lastLinkRefresh = now
	go func() {
		if err := a.link.Refresh(a.ctx); err != nil {
			log.Printf("Link refresh failed: %v", err)
		}
		<-a.linkRefreshing
	}()
}

// maybeReconnectLink retries association with the stored credentials while
// the link stays down.
func (a *App) maybeReconnectLink(now time.Time) {
	p := a.prefs.Get()
	if p.WifiSSID == "" {
		return
	}
	if now.Sub(a.lastLinkConnect) < linkConnectRetry {
		return
	}

	select {
	case a.linkConnecting <- struct{}{}:
	default:
		return
	}

	a.lastLinkConnect = now
	go func() {
		log.Printf("Attempting association with %q", p.WifiSSID)
		if err := a.link.Connect(a.ctx, p.WifiSSID, p.WifiPassphrase); err != nil {
			log.Printf("Link connect failed: %v", err)
		}
		<-a.linkConnecting
	}()
}

// publish sends the current state to the TUI.
func (a *App) publish() {
	if a.program == nil {
		return
	}

	msg := ui.SnapshotMsg{
		Status:        a.channel.Status().String(),
		Idle:          a.idle.Idle(),
		PosterLoading: a.poster.Loading(),
		HavePoster:    a.poster.Image() != nil,
		Dark:          a.prefs.Get().DarkTheme,
		History:       a.store.HistorySnapshot(),
	}

	if addr := a.channel.ActiveAddress(); addr != nil {
		msg.Source = fmt.Sprintf("%s (%s)", addr.HostPort(), addr.Source)
	}
	if session, ok := a.store.Session(); ok {
		msg.Session = &session
	}
	if system, ok := a.store.System(); ok {
		msg.System = &system
	}

	a.program.Send(msg)
}

// sendCommand forwards a playback command, gated on a channel that has
// delivered data recently. Fire and forget: failures are logged, never
// retried, and the user can reissue.
func (a *App) sendCommand(action string) {
	if !a.channel.Usable() {
		log.Printf("Dropping %s command: channel not usable", action)
		return
	}
	session, ok := a.store.Session()
	if !ok {
		return
	}
	addr := a.channel.ActiveAddress()
	if addr == nil {
		return
	}

	hostPort := addr.HostPort()
	go func() {
		if err := a.commands.Send(hostPort, session.SessionID, action); err != nil {
			log.Printf("Command %s failed: %v", action, err)
		}
	}()
}

func (a *App) onIdle() {
	p := a.prefs.Get()
	dimmed := int(float64(p.Brightness) * idleDimFraction)
	log.Printf("Dimming backlight %d -> %d", p.Brightness, dimmed)
}

func (a *App) onActive() {
	p := a.prefs.Get()
	log.Printf("Restoring backlight to %d", p.Brightness)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// Bare host: assume the default port.
		return addr, protocol.DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("bad port %q", portStr)
	}
	return host, port, nil
}
