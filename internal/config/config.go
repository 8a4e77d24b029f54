// ABOUTME: Persistent device preferences backed by a YAML file
// ABOUTME: Holds wifi credentials, display settings, and the cached server address
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Preferences is everything the device remembers across restarts.
type Preferences struct {
	WifiSSID       string `yaml:"wifi_ssid,omitempty"`
	WifiPassphrase string `yaml:"wifi_passphrase,omitempty"`

	DarkTheme  bool `yaml:"dark_theme"`
	Brightness int  `yaml:"brightness"` // 8-255 backlight level

	// Last server address learned through mDNS or broadcast discovery.
	// Reused without re-validation to skip discovery latency on boot.
	LastServerHost string    `yaml:"last_server_host,omitempty"`
	LastServerPort int       `yaml:"last_server_port,omitempty"`
	LastServerSeen time.Time `yaml:"last_server_seen,omitempty"`
}

// Defaults returns the out-of-box preferences.
func Defaults() Preferences {
	return Preferences{
		DarkTheme:  true,
		Brightness: 128,
	}
}

// Store loads and saves preferences. Safe for concurrent use.
type Store struct {
	path  string
	mu    sync.Mutex
	prefs Preferences
}

// Open reads preferences from path, falling back to defaults when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, prefs: Defaults()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	if err := yaml.Unmarshal(data, &s.prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}

	if s.prefs.Brightness < 8 || s.prefs.Brightness > 255 {
		s.prefs.Brightness = Defaults().Brightness
	}

	return s, nil
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Update applies fn to the preferences and persists the result.
func (s *Store) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.prefs)
	return s.save()
}

// SetLastServer records a learned server address.
func (s *Store) SetLastServer(host string, port int) error {
	return s.Update(func(p *Preferences) {
		p.LastServerHost = host
		p.LastServerPort = port
		p.LastServerSeen = time.Now()
	})
}

// save writes atomically: temp file in the same directory, then rename.
func (s *Store) save() error {
	data, err := yaml.Marshal(s.prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp preferences file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close preferences file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}

	return nil
}
