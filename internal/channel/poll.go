// ABOUTME: HTTP poll transport, the fallback delivery path for telemetry
// ABOUTME: One bounded GET per cadence against the well-known REST path
package channel

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nomad-pi/nomad-display/internal/protocol"
)

const pollTimeout = 1 * time.Second

// maxPollBody bounds the poll response read; the dashboard envelope is a
// few KB in practice.
const maxPollBody = 64 * 1024

type pollResult struct {
	addr string
	data []byte
	err  error
}

// poller issues poll requests. The short client timeout is the per-request
// bound the scheduling model requires.
type poller struct {
	client *http.Client
}

func newPoller() *poller {
	return &poller{client: &http.Client{Timeout: pollTimeout}}
}

// fetch performs one poll against hostPort and returns the raw envelope.
func (p *poller) fetch(hostPort string) ([]byte, error) {
	url := fmt.Sprintf("http://%s%s", hostPort, protocol.PollPath)

	resp, err := p.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, fmt.Errorf("poll read failed: %w", err)
	}
	return data, nil
}
