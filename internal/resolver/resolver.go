// ABOUTME: Server address resolution with prioritized fallback sources
// ABOUTME: Tries hotspot static, broadcast-announced, cached, then mDNS lookup
package resolver

import (
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/nomad-pi/nomad-display/internal/config"
	"github.com/nomad-pi/nomad-display/internal/protocol"
)

// Source identifies how an address was obtained.
type Source int

const (
	StaticHotspot Source = iota
	BroadcastDiscovery
	Cached
	NameService
	Manual
)

func (s Source) String() string {
	switch s {
	case StaticHotspot:
		return "hotspot"
	case BroadcastDiscovery:
		return "broadcast"
	case Cached:
		return "cached"
	case NameService:
		return "mdns"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// ServerAddress is a resolved candidate server endpoint.
type ServerAddress struct {
	Host         string
	Port         int
	Source       Source
	DiscoveredAt time.Time
}

// HostPort formats the address for dialing.
func (a ServerAddress) HostPort() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

const (
	// mdnsTimeout bounds the name-service query so resolution never stalls
	// the scheduling loop.
	mdnsTimeout = 2 * time.Second

	// announceFresh is how long a broadcast announcement outranks the cache
	// and name service.
	announceFresh = 5 * time.Minute
)

// Resolver produces candidate server addresses. Resolution order: the
// hotspot static address while associated to the server's own network, the
// freshest broadcast announcement, the persisted cache, and finally an mDNS
// query. The first success wins; later sources are not consulted.
type Resolver struct {
	prefs    *config.Store
	listener *Listener
	static   *ServerAddress

	// onHotspot reports whether the wireless link is on the server's own AP.
	onHotspot func() bool

	// queryMDNS is swapped out in tests.
	queryMDNS func() (*ServerAddress, error)

	now func() time.Time
}

// New creates a resolver. listener may be nil when broadcast discovery is
// disabled.
func New(prefs *config.Store, listener *Listener, onHotspot func() bool) *Resolver {
	r := &Resolver{
		prefs:     prefs,
		listener:  listener,
		onHotspot: onHotspot,
		now:       time.Now,
	}
	r.queryMDNS = r.lookupMDNS
	return r
}

// SetStatic pins resolution to a fixed address, bypassing every other
// source. Used for the manual server override.
func (r *Resolver) SetStatic(host string, port int) {
	r.static = &ServerAddress{
		Host:   host,
		Port:   port,
		Source: Manual,
	}
}

// Resolve returns the best available address, or nil when every source came
// up empty this attempt. The caller retries later with backoff.
func (r *Resolver) Resolve() *ServerAddress {
	if r.static != nil {
		return r.static
	}

	if r.onHotspot != nil && r.onHotspot() {
		return &ServerAddress{
			Host:         protocol.HotspotHost,
			Port:         protocol.DefaultPort,
			Source:       StaticHotspot,
			DiscoveredAt: r.now(),
		}
	}

	if r.listener != nil {
		if addr := r.listener.Latest(); addr != nil && r.now().Sub(addr.DiscoveredAt) < announceFresh {
			return addr
		}
	}

	if r.prefs != nil {
		p := r.prefs.Get()
		if p.LastServerHost != "" && p.LastServerPort > 0 {
			return &ServerAddress{
				Host:         p.LastServerHost,
				Port:         p.LastServerPort,
				Source:       Cached,
				DiscoveredAt: p.LastServerSeen,
			}
		}
	}

	addr, err := r.queryMDNS()
	if err != nil {
		log.Printf("mDNS resolution failed: %v", err)
		return nil
	}
	if addr == nil {
		return nil
	}

	if r.prefs != nil {
		if err := r.prefs.SetLastServer(addr.Host, addr.Port); err != nil {
			log.Printf("Failed to cache resolved address: %v", err)
		}
	}
	log.Printf("Resolved server via mDNS: %s", addr.HostPort())
	return addr
}

// lookupMDNS queries the well-known service type and takes the first
// answering host.
func (r *Resolver) lookupMDNS() (*ServerAddress, error) {
	entries := make(chan *mdns.ServiceEntry, 4)
	done := make(chan *ServerAddress, 1)

	go func() {
		for entry := range entries {
			if entry.AddrV4 == nil {
				continue
			}
			select {
			case done <- &ServerAddress{
				Host:         entry.AddrV4.String(),
				Port:         entry.Port,
				Source:       NameService,
				DiscoveredAt: r.now(),
			}:
			default:
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     protocol.MDNSService,
		Domain:      "local",
		Timeout:     mdnsTimeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	err := mdns.Query(params)
	close(entries)
	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}

	select {
	case addr := <-done:
		return addr, nil
	default:
		return nil, nil
	}
}
