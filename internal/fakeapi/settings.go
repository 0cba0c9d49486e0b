package fakeapi

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the port the real service listens on in development.
	DefaultPort = 8000
	// DefaultPrefix is the API root every route is mounted under.
	DefaultPrefix = "/api/v1"
	// DefaultMaxUploadBytes limits uploaded documents to 10 MB.
	DefaultMaxUploadBytes int64 = 10 << 20
	// DefaultMaxBodyBytes limits JSON and form bodies to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultTokenTTL is the expires_in handed out by login.
	DefaultTokenTTL = time.Hour
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the fake service.
type Settings struct {
	Host           string
	Port           int
	Prefix         string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	TokenTTL       time.Duration
	SigningKey     []byte
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DefaultSettings returns settings with environment overrides applied.
func DefaultSettings() Settings {
	s := Settings{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Prefix:         DefaultPrefix,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		MaxUploadBytes: DefaultMaxUploadBytes,
		TokenTTL:       DefaultTokenTTL,
	}
	s.applyEnvOverrides()
	s.normalize()
	return s
}

func (s *Settings) applyEnvOverrides() {
	if host := strings.TrimSpace(os.Getenv("ADAAPT_MOCK_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("ADAAPT_MOCK_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
	if key := os.Getenv("ADAAPT_MOCK_SIGNING_KEY"); key != "" {
		s.SigningKey = []byte(key)
	}
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	// Port 0 asks the kernel for a free port.
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	s.Prefix = "/" + strings.Trim(strings.TrimSpace(s.Prefix), "/")
	if s.Prefix == "/" {
		s.Prefix = ""
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = DefaultTokenTTL
	}
	if len(s.SigningKey) == 0 {
		s.SigningKey = []byte("adaapt-fake-signing-key")
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the API base URL, prefix included.
func (s Settings) URL() string {
	return "http://" + s.Address() + s.Prefix
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
