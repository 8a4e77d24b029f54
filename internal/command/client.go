// ABOUTME: One-shot session command client (stop/pause/resume)
// ABOUTME: Fire-and-forget POSTs with short timeouts; errors logged, not retried
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/nomad-pi/nomad-display/internal/protocol"
)

const (
	connectTimeout = 1500 * time.Millisecond
	totalTimeout   = 1500 * time.Millisecond
)

// Client issues playback commands against the active server. Commands are
// user-initiated and never retried; the user can reissue one.
type Client struct {
	client *http.Client
}

// NewClient builds a command client with its short timeouts.
func NewClient() *Client {
	return &Client{
		client: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// Send posts one action for the given session. hostPort is the resolved
// server address.
func (c *Client) Send(hostPort, sessionID, action string) error {
	body, err := json.Marshal(protocol.Command{Action: action})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	url := fmt.Sprintf("http://%s"+protocol.CommandPath, hostPort, sessionID)
	resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("command returned HTTP %d", resp.StatusCode)
	}

	log.Printf("Sent %s for session %s", action, sessionID)
	return nil
}
