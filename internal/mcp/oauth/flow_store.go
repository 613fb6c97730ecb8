package oauth

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	errStateNotFound = errors.New("authorization state not found")
	errStateExpired  = errors.New("authorization state expired")
	errCodeNotFound  = errors.New("authorization code not found")
	errCodeExpired   = errors.New("authorization code expired")
)

// FlowStore holds pending authorization states and unredeemed codes.
type FlowStore struct {
	mu     sync.Mutex
	states map[string]*AuthorizationState
	codes  map[string]*AuthorizationCode
	logger *slog.Logger
	now    func() time.Time
}

// NewFlowStore creates a new flow store
func NewFlowStore(logger *slog.Logger) *FlowStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowStore{
		states: make(map[string]*AuthorizationState),
		codes:  make(map[string]*AuthorizationCode),
		logger: logger,
		now:    time.Now,
	}
}

// SaveAuthorizationState stores state under its Google state value.
func (s *FlowStore) SaveAuthorizationState(state *AuthorizationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.GoogleState] = state
}

// ConsumeAuthorizationState returns and removes the state for googleState.
func (s *FlowStore) ConsumeAuthorizationState(googleState string) (*AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[googleState]
	if !ok {
		return nil, errStateNotFound
	}
	delete(s.states, googleState)
	if s.now().Unix() > state.ExpiresAt {
		return nil, errStateExpired
	}
	return state, nil
}

// SaveAuthorizationCode stores a code until it is redeemed or expires.
func (s *FlowStore) SaveAuthorizationCode(code *AuthorizationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
}

// ConsumeAuthorizationCode returns the code and deletes it in the same
// critical section, so a code can be redeemed once.
func (s *FlowStore) ConsumeAuthorizationCode(code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[code]
	if !ok {
		return nil, errCodeNotFound
	}
	delete(s.codes, code)
	if s.now().Unix() > authCode.ExpiresAt {
		return nil, errCodeExpired
	}
	return authCode, nil
}

// cleanupExpired drops expired states and codes.
func (s *FlowStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	var states, codes int
	for k, v := range s.states {
		if now > v.ExpiresAt {
			delete(s.states, k)
			states++
		}
	}
	for k, v := range s.codes {
		if now > v.ExpiresAt {
			delete(s.codes, k)
			codes++
		}
	}
	if states > 0 || codes > 0 {
		s.logger.Debug("Cleaned up OAuth flow data", "states_deleted", states, "codes_deleted", codes)
	}
}
