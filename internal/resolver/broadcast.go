// ABOUTME: Passive UDP listener for unsolicited server discovery broadcasts
// ABOUTME: Overwrites the address cache and raises a dirty signal on change
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/nomad-pi/nomad-display/internal/config"
	"github.com/nomad-pi/nomad-display/internal/protocol"
)

const maxAnnouncementSize = 512

// Listener accepts unsolicited discovery broadcasts on the well-known UDP
// port. Any announcement carrying a new host/port overwrites the persisted
// cache and marks discovery dirty, which forces re-resolution even while a
// channel is open.
type Listener struct {
	prefs *config.Store
	conn  *net.UDPConn

	mu     sync.RWMutex
	latest *ServerAddress

	dirty chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewListener creates a broadcast listener bound later by Start.
func NewListener(prefs *config.Store) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		prefs:  prefs,
		dirty:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Start binds the discovery port and begins listening in the background.
func (l *Listener) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{
		IP:   net.IPv4zero,
		Port: protocol.DiscoveryPort,
	})
	if err != nil {
		return fmt.Errorf("failed to bind discovery port %d: %w", protocol.DiscoveryPort, err)
	}
	l.conn = conn

	l.wg.Add(1)
	go l.listenLoop()

	log.Printf("Discovery listener started on UDP port %d", protocol.DiscoveryPort)
	return nil
}

// Stop shuts the listener down.
func (l *Listener) Stop() {
	l.cancel()
	if l.conn != nil {
		l.conn.Close()
	}
	l.wg.Wait()
}

// Latest returns the most recent announced address, or nil.
func (l *Listener) Latest() *ServerAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latest == nil {
		return nil
	}
	addr := *l.latest
	return &addr
}

// Dirty signals when an announcement changed the candidate address. The
// channel holds at most one pending signal.
func (l *Listener) Dirty() <-chan struct{} {
	return l.dirty
}

// listenLoop reads broadcasts until stopped. Short read deadlines keep the
// loop responsive to cancellation.
func (l *Listener) listenLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxAnnouncementSize)
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if l.ctx.Err() != nil {
				return
			}
			log.Printf("Discovery read error: %v", err)
			continue
		}

		l.handleAnnouncement(buf[:n], addr.IP)
	}
}

// handleAnnouncement validates one datagram and records the sender as the
// candidate server.
func (l *Listener) handleAnnouncement(data []byte, sender net.IP) {
	var ann protocol.Announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		log.Printf("Discovery: invalid announcement from %s: %v", sender, err)
		return
	}
	if !ann.Valid() {
		return
	}
	if sender == nil || sender.IsUnspecified() {
		return
	}

	host := sender.String()

	l.mu.Lock()
	changed := l.latest == nil || l.latest.Host != host || l.latest.Port != ann.Port
	l.latest = &ServerAddress{
		Host:         host,
		Port:         ann.Port,
		Source:       BroadcastDiscovery,
		DiscoveredAt: l.now(),
	}
	l.mu.Unlock()

	if !changed {
		return
	}

	log.Printf("Discovery announcement: server at %s:%d", host, ann.Port)

	if l.prefs != nil {
		if err := l.prefs.SetLastServer(host, ann.Port); err != nil {
			log.Printf("Failed to cache announced address: %v", err)
		}
	}

	select {
	case l.dirty <- struct{}{}:
	default:
	}
}
