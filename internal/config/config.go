package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default client configuration values
const (
	DefaultServer      = "wss://roomdrop.dev/ws"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultMaxFileSize = 2 << 30 // 2 GiB, received files are buffered in memory
)

// Config holds the client configuration.
type Config struct {
	// ServerURL is the signaling relay websocket endpoint.
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool

	// MaxFileSize bounds inbound offers. Larger offers are rejected.
	MaxFileSize int64

	// LoopbackCandidates lets ICE gather 127.0.0.1 candidates. Only useful
	// when both peers run on the same host.
	LoopbackCandidates bool
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	ServerURL   string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	MaxFileSize int64
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, os.Getenv("ROOMDROP_SERVER"), DefaultServer),
		STUNServer: pick(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: pick(opts.TURNServer, os.Getenv("TURN_SERVER"), ""),
		TURNUser:   pick(opts.TURNUser, os.Getenv("TURN_USERNAME"), ""),
		TURNPass:   pick(opts.TURNPass, os.Getenv("TURN_PASSWORD"), ""),
		ForceRelay: opts.ForceRelay,
	}

	serverURL, err := normalizeServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	cfg.ServerURL = serverURL

	cfg.MaxFileSize = opts.MaxFileSize
	if cfg.MaxFileSize == 0 {
		if v := os.Getenv("ROOMDROP_MAX_FILE_SIZE"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid ROOMDROP_MAX_FILE_SIZE %q", v)
			}
			cfg.MaxFileSize = n
		}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// normalizeServerURL accepts ws(s)://, http(s):// or a bare host and returns
// a websocket URL ending in /ws.
func normalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL: missing host")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// GetRoomLink returns a shareable link for a room code, derived from the
// signaling host.
func (c *Config) GetRoomLink(code string) string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return code
	}
	scheme := "https"
	if u.Scheme == "ws" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, u.Host, code)
}

// GetSTUNServers returns STUN server URLs
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
