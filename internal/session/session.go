// Package session holds the signed-in user's tokens. The store is the only
// writer of the persisted session file and doubles as the oauth2.TokenSource
// every authenticated API call draws its bearer token from.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSession is returned when nobody is signed in.
	ErrNoSession = errors.New("session: not signed in")
	// ErrExpired is returned once the access token has passed its expiry.
	// There is no silent refresh; the user signs in again.
	ErrExpired = errors.New("session: expired")
)

// Session is the token pair issued by a successful login.
type Session struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Valid reports whether the session carries a token that has not expired at now.
func (s Session) Valid(now time.Time) bool {
	if strings.TrimSpace(s.AccessToken) == "" {
		return false
	}
	return s.Expiry.IsZero() || now.Before(s.Expiry)
}

// Token converts the session into an oauth2 bearer token.
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry,
	}
}

// Identity is what the access token says about its holder. It is read without
// signature verification and is only used for display.
type Identity struct {
	Subject string
	Email   string
}

type identityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// persisted mirrors the three values the browser client kept in local storage.
type persisted struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	TokenExpiry  int64  `yaml:"token_expiry"` // unix milliseconds
}

// Store keeps the current session in memory and on disk.
type Store struct {
	path  string
	clock func() time.Time

	mu      sync.RWMutex
	current *Session
}

// Option customizes store construction.
type Option func(*Store)

// WithClock allows tests to control expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a store persisting to path. An empty path keeps the
// session in memory only.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:  strings.TrimSpace(path),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Path returns the file backing this store.
func (s *Store) Path() string {
	return s.path
}

// Load restores a previously persisted session. A missing file is not an error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var p persisted
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("session: parse %s: %w", s.path, err)
	}
	if strings.TrimSpace(p.AccessToken) == "" {
		return nil
	}
	sess := Session{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
	if p.TokenExpiry > 0 {
		sess.Expiry = time.UnixMilli(p.TokenExpiry)
	}
	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	return nil
}

// Create builds a session from a token response issued now and persists it.
func (s *Store) Create(accessToken, refreshToken string, expiresIn time.Duration) (Session, error) {
	sess := Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if expiresIn > 0 {
		sess.Expiry = s.clock().Add(expiresIn)
	}
	if err := s.Save(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Save replaces the current session and writes it to disk.
func (s *Store) Save(sess Session) error {
	if strings.TrimSpace(sess.AccessToken) == "" {
		return fmt.Errorf("session: access token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(sess); err != nil {
		return err
	}
	s.current = &sess
	return nil
}

// Current returns the live session. An expired session is cleared on read.
func (s *Store) Current() (Session, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil {
		return Session{}, ErrNoSession
	}
	if !cur.Valid(s.clock()) {
		_ = s.clearIf(cur)
		return Session{}, ErrExpired
	}
	return *cur, nil
}

// SignedIn reports whether a valid session is present.
func (s *Store) SignedIn() bool {
	_, err := s.Current()
	return err == nil
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	sess, err := s.Current()
	if err != nil {
		return nil, err
	}
	return sess.Token(), nil
}

// Identity decodes the access token's claims. Tokens that are not JWTs yield
// an empty identity and an error.
func (s *Store) Identity() (Identity, error) {
	sess, err := s.Current()
	if err != nil {
		return Identity{}, err
	}
	claims := &identityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(sess.AccessToken, claims); err != nil {
		return Identity{}, fmt.Errorf("session: decode access token: %w", err)
	}
	return Identity{Subject: claims.Subject, Email: claims.Email}, nil
}

// Clear forgets the session in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

// clearIf clears the store only while it still holds cur, so a session
// saved after cur was read survives.
func (s *Store) clearIf(cur *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != cur {
		return nil
	}
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.current = nil
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) write(sess Session) error {
	if s.path == "" {
		return nil
	}
	p := persisted{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	}
	if !sess.Expiry.IsZero() {
		p.TokenExpiry = sess.Expiry.UnixMilli()
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: ensure state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", s.path, err)
	}
	return nil
}
