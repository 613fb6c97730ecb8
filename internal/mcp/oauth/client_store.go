package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	errClientNotFound      = errors.New("client not found")
	errInvalidClientSecret = errors.New("invalid client secret")
)

// ClientStore keeps dynamically registered clients in memory.
type ClientStore struct {
	mu           sync.RWMutex
	clients      map[string]*RegisteredClient
	clientsPerIP map[string]int
	logger       *slog.Logger
}

// NewClientStore creates a new client store
func NewClientStore(logger *slog.Logger) *ClientStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientStore{
		clients:      make(map[string]*RegisteredClient),
		clientsPerIP: make(map[string]int),
		logger:       logger,
	}
}

// CheckIPLimit fails once ip has registered maxClientsPerIP clients. A
// non-positive limit disables the check.
func (s *ClientStore) CheckIPLimit(ip string, maxClientsPerIP int) error {
	if maxClientsPerIP <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count := s.clientsPerIP[ip]; count >= maxClientsPerIP {
		return fmt.Errorf("client registration limit reached for IP %s (%d/%d)", ip, count, maxClientsPerIP)
	}
	return nil
}

// RegisterClient stores a new client and returns its credentials. Public
// clients (token_endpoint_auth_method "none") get no secret.
func (s *ClientStore) RegisterClient(req *ClientRegistrationRequest, clientIP string) (*ClientRegistrationResponse, error) {
	clientID, err := generateSecureToken(ClientIDTokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client ID: %w", err)
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = DefaultTokenEndpointAuthMethod
	}
	if !slices.Contains(SupportedTokenAuthMethods, authMethod) {
		return nil, fmt.Errorf("unsupported token_endpoint_auth_method %q", authMethod)
	}

	var clientSecret, secretHash string
	if authMethod != AuthMethodNone {
		clientSecret, err = generateSecureToken(ClientSecretTokenLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		secretHash = string(hash)
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = DefaultGrantTypes
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = DefaultResponseTypes
	}

	now := time.Now().Unix()
	client := &RegisteredClient{
		ClientID:                clientID,
		ClientSecretHash:        secretHash,
		ClientIDIssuedAt:        now,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scope:                   req.Scope,
	}

	s.mu.Lock()
	s.clients[clientID] = client
	if clientIP != "" {
		s.clientsPerIP[clientIP]++
	}
	perIP := s.clientsPerIP[clientIP]
	s.mu.Unlock()

	s.logger.Info("Registered OAuth client",
		"client_id", clientID,
		"client_name", req.ClientName,
		"auth_method", authMethod,
		"clients_from_ip", perIP,
	)

	return &ClientRegistrationResponse{
		ClientID:                clientID,
		ClientSecret:            clientSecret,
		ClientIDIssuedAt:        now,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scope:                   req.Scope,
	}, nil
}

// GetClient retrieves a registered client by ID
func (s *ClientStore) GetClient(clientID string) (*RegisteredClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, errClientNotFound
	}
	return client, nil
}

// ValidateClientSecret compares secret with the stored bcrypt hash.
func (s *ClientStore) ValidateClientSecret(clientID, secret string) error {
	client, err := s.GetClient(clientID)
	if err != nil {
		return err
	}
	if client.IsPublic() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		return errInvalidClientSecret
	}
	return nil
}

// ValidateRedirectURI requires an exact match with a registered URI.
func (s *ClientStore) ValidateRedirectURI(clientID, redirectURI string) error {
	client, err := s.GetClient(clientID)
	if err != nil {
		return err
	}
	if !slices.Contains(client.RedirectURIs, redirectURI) {
		return fmt.Errorf("redirect_uri not registered for this client")
	}
	return nil
}
