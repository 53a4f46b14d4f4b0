package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default server configuration values
const (
	DefaultAddr           = ":8080"
	DefaultMaxRooms       = 10000
	DefaultMaxRoomMembers = 8
)

// ServerConfig holds configuration for the relay binary.
type ServerConfig struct {
	Addr     string
	LogLevel string

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	// Registry bounds. Zero disables the limit.
	MaxRooms       int
	MaxRoomMembers int
}

// ServerOptions carries flag overrides for the relay.
type ServerOptions struct {
	Addr           string
	LogLevel       string
	AllowedOrigins string
	MaxRooms       int
	MaxRoomMembers int
}

// LoadServer resolves the relay configuration: flags, then environment,
// then defaults. PORT is honoured for platforms that only hand out a port.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := pick(opts.Addr, os.Getenv("ADDR"))
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr == "" {
		addr = DefaultAddr
	}

	cfg := &ServerConfig{
		Addr:     addr,
		LogLevel: pick(opts.LogLevel, os.Getenv("LOG_LEVEL"), "info"),
	}

	if origins := pick(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	if cfg.MaxRooms, err = intSetting(opts.MaxRooms, "MAX_ROOMS", DefaultMaxRooms); err != nil {
		return nil, err
	}
	if cfg.MaxRoomMembers, err = intSetting(opts.MaxRoomMembers, "MAX_ROOM_MEMBERS", DefaultMaxRoomMembers); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intSetting(flagValue int, env string, def int) (int, error) {
	if flagValue != 0 {
		if flagValue < 0 {
			return 0, fmt.Errorf("%s must not be negative", strings.ToLower(env))
		}
		return flagValue, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", env, v)
	}
	return n, nil
}
