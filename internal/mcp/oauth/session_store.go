package oauth

import (
	"errors"
	"sync"
	"time"
)

var errTokenNotFound = errors.New("token not found or expired")

// Session is what an issued access or refresh token stands for.
type Session struct {
	Email     string
	Name      string
	ClientID  string
	Scope     string
	ExpiresAt time.Time
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore maps opaque tokens issued by this server to sessions. The
// Google tokens behind them live in the mcp-oauth token store.
type SessionStore struct {
	mu      sync.Mutex
	access  map[string]*Session
	refresh map[string]*Session
	now     func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		access:  make(map[string]*Session),
		refresh: make(map[string]*Session),
		now:     time.Now,
	}
}

func (s *SessionStore) SaveAccessToken(token string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[token] = sess
}

// AccessToken looks up an unexpired access token.
func (s *SessionStore) AccessToken(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.access[token]
	if !ok {
		return nil, errTokenNotFound
	}
	if sess.expired(s.now()) {
		delete(s.access, token)
		return nil, errTokenNotFound
	}
	return sess, nil
}

func (s *SessionStore) SaveRefreshToken(token string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = sess
}

// ConsumeRefreshToken returns and deletes a refresh token. Rotation issues
// a new one on every use.
func (s *SessionStore) ConsumeRefreshToken(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.refresh[token]
	if !ok {
		return nil, errTokenNotFound
	}
	delete(s.refresh, token)
	if sess.expired(s.now()) {
		return nil, errTokenNotFound
	}
	return sess, nil
}

// Revoke deletes token from both maps and reports whether it was known.
func (s *SessionStore) Revoke(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.access[token]; ok {
		delete(s.access, token)
		return sess, true
	}
	if sess, ok := s.refresh[token]; ok {
		delete(s.refresh, token)
		return sess, true
	}
	return nil, false
}

func (s *SessionStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.access {
		if v.expired(now) {
			delete(s.access, k)
		}
	}
	for k, v := range s.refresh {
		if v.expired(now) {
			delete(s.refresh, k)
		}
	}
}
