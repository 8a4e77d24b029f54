// ABOUTME: Wireless link manager reporting association state, SSID, and signal
// ABOUTME: Shells out to iw with a bounded context and caches a read-only snapshot
package link

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// refreshTimeout bounds the iw invocation so a wedged driver cannot
	// stall the scheduling loop beyond its declared budget.
	refreshTimeout = 2 * time.Second

	// connectTimeout bounds an association attempt. Callers run Connect off
	// the scheduling loop.
	connectTimeout = 20 * time.Second
)

// State is the current wireless link snapshot. Only the Manager mutates it;
// everyone else reads copies.
type State struct {
	Associated bool
	SSID       string
	RSSI       int // dBm, negative; 0 when unknown
	IPAddress  string
}

// Manager owns the wireless interface status. Association and credential
// writes are handled by the OS network stack; this only observes.
type Manager struct {
	iface string

	mu    sync.RWMutex
	state State

	runIw    func(ctx context.Context, iface string) ([]byte, error)
	ifaceIP  func(iface string) string
	runNmcli func(ctx context.Context, iface, ssid, passphrase string) ([]byte, error)
}

// NewManager creates a link manager for the named wireless interface.
func NewManager(iface string) *Manager {
	return &Manager{
		iface:    iface,
		runIw:    runIwLink,
		ifaceIP:  interfaceIPv4,
		runNmcli: runNmcliConnect,
	}
}

// Connect associates to ssid with the stored passphrase through the OS
// connection manager. Blocking up to its timeout; call off the scheduling
// loop. The next Refresh observes the result.
func (m *Manager) Connect(ctx context.Context, ssid, passphrase string) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if _, err := m.runNmcli(ctx, m.iface, ssid, passphrase); err != nil {
		return fmt.Errorf("association with %q failed: %w", ssid, err)
	}
	return nil
}

// Refresh re-reads link status. Failures leave the previous snapshot in
// place except that association is dropped, since an unreadable interface
// is not a usable one.
func (m *Manager) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	out, err := m.runIw(ctx, m.iface)
	if err != nil {
		m.mu.Lock()
		m.state.Associated = false
		m.mu.Unlock()
		return fmt.Errorf("iw link query failed: %w", err)
	}

	st := parseIwLink(string(out))
	if st.Associated {
		st.IPAddress = m.ifaceIP(m.iface)
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	return nil
}

// State returns the latest snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnHotspot reports whether the link is associated to the server's own
// access point.
func (m *Manager) OnHotspot(hotspotSSID string) bool {
	st := m.State()
	return st.Associated && st.SSID == hotspotSSID
}

// parseIwLink extracts association, SSID, and signal from `iw dev <if> link`
// output. "Not connected." means no association.
func parseIwLink(out string) State {
	var st State

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "Connected to "):
			st.Associated = true

		case strings.HasPrefix(line, "SSID:"):
			st.SSID = strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))

		case strings.HasPrefix(line, "signal:"):
			// "signal: -58 dBm"
			fields := strings.Fields(strings.TrimPrefix(line, "signal:"))
			if len(fields) > 0 {
				if dbm, err := strconv.Atoi(fields[0]); err == nil {
					st.RSSI = dbm
				}
			}
		}
	}

	return st
}

// runIwLink executes the iw query for real hardware.
func runIwLink(ctx context.Context, iface string) ([]byte, error) {
	return exec.CommandContext(ctx, "iw", "dev", iface, "link").Output()
}

// runNmcliConnect asks NetworkManager to associate.
func runNmcliConnect(ctx context.Context, iface, ssid, passphrase string) ([]byte, error) {
	args := []string{"dev", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	if iface != "" {
		args = append(args, "ifname", iface)
	}
	return exec.CommandContext(ctx, "nmcli", args...).Output()
}

// interfaceIPv4 returns the interface's first IPv4 address, or "".
func interfaceIPv4(iface string) string {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}

	addrs, err := ifc.Addrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}
