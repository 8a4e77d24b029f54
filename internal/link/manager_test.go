// ABOUTME: Tests for the wireless link manager
// ABOUTME: Covers iw output parsing, hotspot detection, and failure handling
package link

import (
	"context"
	"errors"
	"testing"
)

const iwConnected = `Connected to aa:bb:cc:dd:ee:ff (on wlan0)
	SSID: HomeNet
	freq: 2437
	RX: 885301 bytes (1420 packets)
	TX: 68195 bytes (583 packets)
	signal: -58 dBm
	rx bitrate: 144.4 MBit/s
	tx bitrate: 130.0 MBit/s
`

const iwHotspot = `Connected to 11:22:33:44:55:66 (on wlan0)
	SSID: NomadPi
	freq: 2412
	signal: -41 dBm
`

func TestParseIwLinkConnected(t *testing.T) {
	st := parseIwLink(iwConnected)

	if !st.Associated {
		t.Fatal("expected associated state")
	}
	if st.SSID != "HomeNet" {
		t.Errorf("expected SSID 'HomeNet', got '%s'", st.SSID)
	}
	if st.RSSI != -58 {
		t.Errorf("expected RSSI -58, got %d", st.RSSI)
	}
}

func TestParseIwLinkNotConnected(t *testing.T) {
	st := parseIwLink("Not connected.\n")

	if st.Associated {
		t.Error("expected not associated")
	}
	if st.SSID != "" {
		t.Errorf("expected empty SSID, got '%s'", st.SSID)
	}
}

func TestRefreshUpdatesState(t *testing.T) {
	m := NewManager("wlan0")
	m.runIw = func(ctx context.Context, iface string) ([]byte, error) {
		return []byte(iwConnected), nil
	}
	m.ifaceIP = func(iface string) string { return "192.168.1.23" }

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	st := m.State()
	if !st.Associated {
		t.Error("expected associated")
	}
	if st.IPAddress != "192.168.1.23" {
		t.Errorf("expected IP 192.168.1.23, got '%s'", st.IPAddress)
	}
}

func TestRefreshFailureDropsAssociation(t *testing.T) {
	m := NewManager("wlan0")
	m.runIw = func(ctx context.Context, iface string) ([]byte, error) {
		return []byte(iwConnected), nil
	}
	m.ifaceIP = func(iface string) string { return "192.168.1.23" }

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	m.runIw = func(ctx context.Context, iface string) ([]byte, error) {
		return nil, errors.New("device busy")
	}

	if err := m.Refresh(context.Background()); err == nil {
		t.Error("expected error from failed refresh")
	}
	if m.State().Associated {
		t.Error("expected association dropped after failed refresh")
	}
}

func TestConnectInvokesConnectionManager(t *testing.T) {
	m := NewManager("wlan0")

	var gotIface, gotSSID, gotPass string
	m.runNmcli = func(ctx context.Context, iface, ssid, passphrase string) ([]byte, error) {
		gotIface, gotSSID, gotPass = iface, ssid, passphrase
		return nil, nil
	}

	if err := m.Connect(context.Background(), "HomeNet", "hunter2"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if gotIface != "wlan0" || gotSSID != "HomeNet" || gotPass != "hunter2" {
		t.Errorf("got %s/%s/%s", gotIface, gotSSID, gotPass)
	}
}

func TestConnectReportsFailure(t *testing.T) {
	m := NewManager("wlan0")
	m.runNmcli = func(ctx context.Context, iface, ssid, passphrase string) ([]byte, error) {
		return nil, errors.New("no such network")
	}

	if err := m.Connect(context.Background(), "Ghost", ""); err == nil {
		t.Error("expected error from failed association")
	}
}

func TestOnHotspot(t *testing.T) {
	m := NewManager("wlan0")
	m.runIw = func(ctx context.Context, iface string) ([]byte, error) {
		return []byte(iwHotspot), nil
	}
	m.ifaceIP = func(iface string) string { return "10.42.0.17" }

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if !m.OnHotspot("NomadPi") {
		t.Error("expected hotspot association to be detected")
	}
	if m.OnHotspot("HomeNet") {
		t.Error("did not expect match against a different SSID")
	}
}
