// ABOUTME: Poster fetch/decode pipeline with fixed framebuffers
// ABOUTME: Fetches on URL change, decodes off-thread, publishes by pointer swap
package poster

import (
	"fmt"
	"image"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// fetchSpacing is the minimum gap between any two fetch attempts,
	// whatever the trigger.
	fetchSpacing = 15 * time.Second

	// failedRetry is how long a failed URL is left alone before the
	// unchanged URL is tried again.
	failedRetry = 30 * time.Second

	connectTimeout = 4 * time.Second
	totalTimeout   = 8 * time.Second
)

type fetchOutcome struct {
	url string
	err error
}

// resolveURL turns a server-relative poster path into an absolute URL. A
// relative path with no known server address is unusable this tick.
func resolveURL(url, hostPort string) (string, bool) {
	if !strings.HasPrefix(url, "/") {
		return url, true
	}
	if hostPort == "" {
		return "", false
	}
	return "http://" + hostPort + url, true
}

// Pipeline owns the poster framebuffers. Two fixed-size buffers are allocated
// up front: fetch and decode target the back buffer, and a successful decode
// publishes it by swapping the front pointer. Readers see the old poster or
// the new one, never a partial.
//
// Not safe for concurrent use; the scheduling loop is its only driver.
type Pipeline struct {
	front *image.RGBA
	back  *image.RGBA

	shownURL  string // URL of the poster currently in front
	failedURL string
	failedAt  time.Time
	lastFetch time.Time

	loading bool
	results chan fetchOutcome

	client *http.Client
	now    func() time.Time
}

// NewPipeline allocates the framebuffers and the HTTP client.
func NewPipeline() *Pipeline {
	rect := image.Rect(0, 0, Width, Height)
	return &Pipeline{
		front:   nil, // nothing to show until the first decode
		back:    image.NewRGBA(rect),
		results: make(chan fetchOutcome, 1),
		client: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		now: time.Now,
	}
}

// Image returns the currently published poster, or nil before the first
// successful decode. The returned buffer is never mutated after publish.
func (p *Pipeline) Image() *image.RGBA {
	return p.front
}

// Loading reports whether a fetch/decode is in flight.
func (p *Pipeline) Loading() bool {
	return p.loading
}

// MaybeRefresh is invoked once per dashboard update with the current
// session's poster URL and the active server address. The server sends
// relative paths; those resolve against hostPort. It collects any finished
// fetch and decides whether a new one should start.
func (p *Pipeline) MaybeRefresh(url, hostPort string) {
	p.collect()

	if url == "" || p.loading {
		return
	}

	url, ok := resolveURL(url, hostPort)
	if !ok {
		return
	}
	if url == p.shownURL {
		return
	}

	now := p.now()

	// Unchanged-but-failed URLs wait out the retry window.
	if url == p.failedURL && now.Sub(p.failedAt) < failedRetry {
		return
	}
	if !p.lastFetch.IsZero() && now.Sub(p.lastFetch) < fetchSpacing {
		return
	}

	p.lastFetch = now
	p.loading = true
	go p.fetch(url)
}

// collect applies the outcome of a finished fetch. The loading flag clears
// on every completion, success or failure.
func (p *Pipeline) collect() {
	select {
	case out := <-p.results:
		p.loading = false
		if out.err != nil {
			log.Printf("Poster fetch failed for %s: %v", out.url, out.err)
			p.failedURL = out.url
			p.failedAt = p.now()
			return
		}
		// Publish: swap the freshly decoded back buffer in. The old front
		// becomes the next decode target.
		old := p.front
		p.front = p.back
		if old == nil {
			old = image.NewRGBA(image.Rect(0, 0, Width, Height))
		}
		p.back = old
		p.shownURL = out.url
		p.failedURL = ""
	default:
	}
}

// fetch downloads and decodes one poster into the back buffer. Runs off the
// scheduling loop; only the result channel crosses back.
func (p *Pipeline) fetch(url string) {
	err := p.fetchInto(p.back, url)
	p.results <- fetchOutcome{url: url, err: err}
}

func (p *Pipeline) fetchInto(dst *image.RGBA, url string) error {
	log.Printf("Fetching poster: %s", url)

	resp, err := p.client.Get(url)
	if err != nil {
		return fmt.Errorf("poster request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poster returned HTTP %d", resp.StatusCode)
	}

	buf := newGrowBuffer()
	if err := buf.readFrom(resp.Body); err != nil {
		return err
	}
	data := buf.bytes()

	if err := decodeInto(dst, data); err != nil {
		return fmt.Errorf("%w (content-type %q, %s)", err,
			resp.Header.Get("Content-Type"), humanize.Bytes(uint64(len(data))))
	}

	log.Printf("Poster decoded: %s %s", Sniff(data), humanize.Bytes(uint64(len(data))))
	return nil
}
