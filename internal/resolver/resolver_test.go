// ABOUTME: Tests for address resolution priority and broadcast handling
// ABOUTME: Covers source ordering, cache persistence, and dirty signaling
package resolver

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomad-pi/nomad-display/internal/config"
)

func newTestPrefs(t *testing.T) *config.Store {
	t.Helper()
	s, err := config.Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	if err != nil {
		t.Fatalf("failed to open prefs: %v", err)
	}
	return s
}

func TestResolveHotspotWins(t *testing.T) {
	prefs := newTestPrefs(t)
	if err := prefs.SetLastServer("192.168.1.9", 8000); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	mdnsCalled := false
	r := New(prefs, nil, func() bool { return true })
	r.queryMDNS = func() (*ServerAddress, error) {
		mdnsCalled = true
		return nil, nil
	}

	addr := r.Resolve()
	if addr == nil {
		t.Fatal("expected an address")
	}
	if addr.Source != StaticHotspot {
		t.Errorf("expected hotspot source, got %s", addr.Source)
	}
	if addr.Host != "10.42.0.1" || addr.Port != 8000 {
		t.Errorf("expected 10.42.0.1:8000, got %s", addr.HostPort())
	}
	if mdnsCalled {
		t.Error("lower-priority source consulted after a success")
	}
}

func TestResolveCachedBeforeNameService(t *testing.T) {
	prefs := newTestPrefs(t)
	if err := prefs.SetLastServer("192.168.1.9", 8000); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	mdnsCalled := false
	r := New(prefs, nil, func() bool { return false })
	r.queryMDNS = func() (*ServerAddress, error) {
		mdnsCalled = true
		return nil, nil
	}

	addr := r.Resolve()
	if addr == nil {
		t.Fatal("expected an address")
	}
	if addr.Source != Cached {
		t.Errorf("expected cached source, got %s", addr.Source)
	}
	if addr.Host != "192.168.1.9" {
		t.Errorf("expected cached host, got %s", addr.Host)
	}
	if mdnsCalled {
		t.Error("mDNS consulted despite cache hit")
	}
}

func TestResolveNameServicePersistsCache(t *testing.T) {
	prefs := newTestPrefs(t)

	r := New(prefs, nil, func() bool { return false })
	r.queryMDNS = func() (*ServerAddress, error) {
		return &ServerAddress{
			Host:   "192.168.1.50",
			Port:   8000,
			Source: NameService,
		}, nil
	}

	addr := r.Resolve()
	if addr == nil {
		t.Fatal("expected an address")
	}
	if addr.Source != NameService {
		t.Errorf("expected mdns source, got %s", addr.Source)
	}
	if addr.Host != "192.168.1.50" || addr.Port != 8000 {
		t.Errorf("expected 192.168.1.50:8000, got %s", addr.HostPort())
	}

	p := prefs.Get()
	if p.LastServerHost != "192.168.1.50" || p.LastServerPort != 8000 {
		t.Errorf("expected resolved address persisted, got %s:%d",
			p.LastServerHost, p.LastServerPort)
	}
}

func TestResolveTotalFailureYieldsNil(t *testing.T) {
	prefs := newTestPrefs(t)

	r := New(prefs, nil, func() bool { return false })
	r.queryMDNS = func() (*ServerAddress, error) {
		return nil, errors.New("timeout")
	}

	if addr := r.Resolve(); addr != nil {
		t.Errorf("expected nil, got %+v", addr)
	}
}

func TestResolveFreshAnnouncementOutranksCache(t *testing.T) {
	prefs := newTestPrefs(t)
	if err := prefs.SetLastServer("192.168.1.9", 8000); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	l := NewListener(prefs)
	l.handleAnnouncement([]byte(`{"type":"discovery","port":9090}`), net.ParseIP("192.168.1.77"))

	r := New(prefs, l, func() bool { return false })
	r.queryMDNS = func() (*ServerAddress, error) { return nil, nil }

	addr := r.Resolve()
	if addr == nil {
		t.Fatal("expected an address")
	}
	if addr.Source != BroadcastDiscovery {
		t.Errorf("expected broadcast source, got %s", addr.Source)
	}
	if addr.Host != "192.168.1.77" || addr.Port != 9090 {
		t.Errorf("expected announced address, got %s", addr.HostPort())
	}
}

func TestResolveStaleAnnouncementFallsThrough(t *testing.T) {
	prefs := newTestPrefs(t)

	l := NewListener(prefs)
	l.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	l.handleAnnouncement([]byte(`{"type":"discovery","port":9090}`), net.ParseIP("192.168.1.77"))

	r := New(prefs, l, func() bool { return false })
	r.queryMDNS = func() (*ServerAddress, error) { return nil, nil }

	addr := r.Resolve()
	// The stale announcement was still persisted to the cache, so the cache
	// step picks it up with the Cached tag.
	if addr == nil {
		t.Fatal("expected cached address")
	}
	if addr.Source != Cached {
		t.Errorf("expected cached source for stale announcement, got %s", addr.Source)
	}
}

func TestAnnouncementUpdatesCacheAndDirty(t *testing.T) {
	prefs := newTestPrefs(t)
	l := NewListener(prefs)

	l.handleAnnouncement([]byte(`{"type":"discovery","port":8000}`), net.ParseIP("192.168.1.42"))

	select {
	case <-l.Dirty():
	default:
		t.Fatal("expected dirty signal after new announcement")
	}

	p := prefs.Get()
	if p.LastServerHost != "192.168.1.42" || p.LastServerPort != 8000 {
		t.Errorf("expected cache updated, got %s:%d", p.LastServerHost, p.LastServerPort)
	}

	// Same announcement again: no new dirty signal.
	l.handleAnnouncement([]byte(`{"type":"discovery","port":8000}`), net.ParseIP("192.168.1.42"))
	select {
	case <-l.Dirty():
		t.Error("unchanged announcement should not re-signal")
	default:
	}
}

func TestAnnouncementRejectsInvalid(t *testing.T) {
	prefs := newTestPrefs(t)
	l := NewListener(prefs)

	l.handleAnnouncement([]byte(`not json`), net.ParseIP("192.168.1.42"))
	l.handleAnnouncement([]byte(`{"type":"other","port":8000}`), net.ParseIP("192.168.1.42"))
	l.handleAnnouncement([]byte(`{"type":"discovery","port":0}`), net.ParseIP("192.168.1.42"))
	l.handleAnnouncement([]byte(`{"type":"discovery","port":8000}`), net.IPv4zero)

	if l.Latest() != nil {
		t.Error("invalid announcements should not produce a candidate")
	}
	if prefs.Get().LastServerHost != "" {
		t.Error("invalid announcements should not touch the cache")
	}
}
