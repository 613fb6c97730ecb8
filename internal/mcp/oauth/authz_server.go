package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/logging"
)

var customSchemePattern = regexp.MustCompile(`^[a-z][a-z0-9+.-]*$`)

// ServeClientRegistration handles RFC 7591 dynamic client registration.
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	var req ClientRegistrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeOAuthError(w, ErrInvalidRequest("Failed to parse registration request"))
		return
	}

	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, ErrInvalidRedirectURI("At least one redirect_uri is required"))
		return
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri, h.config.Resource); err != nil {
			writeOAuthError(w, ErrInvalidRedirectURI(err.Error()))
			return
		}
	}

	ip := clientIP(r, h.config.RateLimit.TrustProxy)
	if err := h.clients.CheckIPLimit(ip, h.config.Security.MaxClientsPerIP); err != nil {
		h.logger.Warn("Client registration limit exceeded", "limit", h.config.Security.MaxClientsPerIP)
		writeOAuthError(w, NewOAuthError("invalid_request",
			fmt.Sprintf("Client registration limit exceeded for your IP address (%d max)", h.config.Security.MaxClientsPerIP),
			http.StatusTooManyRequests))
		return
	}

	resp, err := h.clients.RegisterClient(&req, ip)
	if err != nil {
		writeOAuthError(w, ErrInvalidRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ServeAuthorization validates the client request and redirects the user
// to Google.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	scope := q.Get("scope")
	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")

	switch {
	case clientID == "":
		writeOAuthError(w, ErrInvalidRequest("client_id is required"))
		return
	case redirectURI == "":
		writeOAuthError(w, ErrInvalidRequest("redirect_uri is required"))
		return
	case state == "":
		writeOAuthError(w, ErrInvalidRequest("state parameter is required"))
		return
	}
	if rt := q.Get("response_type"); rt != "" && rt != ResponseTypeCode {
		writeOAuthError(w, NewOAuthError("unsupported_response_type", "Only response_type=code is supported", http.StatusBadRequest))
		return
	}

	client, err := h.clients.GetClient(clientID)
	if err != nil {
		writeOAuthError(w, ErrInvalidClient("Invalid client_id"))
		return
	}
	if err := h.clients.ValidateRedirectURI(clientID, redirectURI); err != nil {
		writeOAuthError(w, ErrInvalidRequest("redirect_uri not registered for this client"))
		return
	}
	if err := h.validateScopes(scope); err != nil {
		writeOAuthError(w, ErrInvalidScope(err.Error()))
		return
	}

	if challenge == "" && client.IsPublic() {
		writeOAuthError(w, ErrInvalidRequest("PKCE is required for public clients"))
		return
	}
	if challenge != "" {
		if method == "" {
			method = CodeChallengeMethodS256
		}
		if !slices.Contains(SupportedCodeChallengeMethods, method) {
			writeOAuthError(w, ErrInvalidRequest("code_challenge_method must be S256"))
			return
		}
	}

	googleState, err := generateSecureToken(StateTokenLength)
	if err != nil {
		writeOAuthError(w, ErrServerError("Failed to generate state"))
		return
	}
	h.flows.SaveAuthorizationState(&AuthorizationState{
		State:               state,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		GoogleState:         googleState,
		ExpiresAt:           time.Now().Add(DefaultAuthorizationCodeTTL).Unix(),
	})

	authURL := h.googleConfig.AuthCodeURL(googleState, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	h.logger.Debug("Redirecting to Google for authorization", "client_id", clientID)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// ServeGoogleCallback exchanges Google's code, stores the user's Google
// token and redirects back to the client with a code of our own.
func (h *Handler) ServeGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Warn("Google OAuth error", "error", e, "description", q.Get("error_description"))
		writeOAuthError(w, NewOAuthError("access_denied", fmt.Sprintf("Google OAuth error: %s", e), http.StatusBadRequest))
		return
	}

	authState, err := h.flows.ConsumeAuthorizationState(q.Get("state"))
	if err != nil {
		writeOAuthError(w, ErrInvalidRequest("Invalid or expired state"))
		return
	}

	ctx := r.Context()
	ctx = contextWithHTTPClient(ctx, h.config.HTTPClient)
	googleToken, err := h.googleConfig.Exchange(ctx, q.Get("code"))
	if err != nil {
		h.logger.Error("Failed to exchange code for Google token", logging.Err(err))
		writeOAuthError(w, ErrServerError("Failed to exchange authorization code"))
		return
	}

	user, err := h.identity.UserInfo(ctx, googleToken)
	if err != nil || user.Email == "" {
		h.logger.Error("Failed to fetch Google user info", logging.Err(err))
		writeOAuthError(w, ErrServerError("Failed to fetch user information"))
		return
	}

	if err := h.store.SaveToken(ctx, user.Email, googleToken); err != nil {
		writeOAuthError(w, ErrServerError("Failed to store token"))
		return
	}

	code, err := generateSecureToken(StateTokenLength)
	if err != nil {
		writeOAuthError(w, ErrServerError("Failed to generate authorization code"))
		return
	}
	h.flows.SaveAuthorizationCode(&AuthorizationCode{
		Code:                code,
		ClientID:            authState.ClientID,
		RedirectURI:         authState.RedirectURI,
		Scope:               authState.Scope,
		CodeChallenge:       authState.CodeChallenge,
		CodeChallengeMethod: authState.CodeChallengeMethod,
		UserEmail:           user.Email,
		UserName:            user.Name,
		ExpiresAt:           time.Now().Add(DefaultAuthorizationCodeTTL).Unix(),
	})

	redirect, err := url.Parse(authState.RedirectURI)
	if err != nil {
		writeOAuthError(w, ErrServerError("Invalid redirect URI"))
		return
	}
	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", authState.State)
	redirect.RawQuery = rq.Encode()

	h.logger.Info("Google sign-in completed", logging.UserHash(user.Email), "client_id", authState.ClientID)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// ServeToken handles the authorization_code and refresh_token grants.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, ErrInvalidRequest("Failed to parse request"))
		return
	}

	var (
		resp *TokenResponse
		oerr *OAuthError
	)
	switch gt := r.PostForm.Get("grant_type"); gt {
	case GrantTypeAuthorizationCode:
		resp, oerr = h.authorizationCodeGrant(r)
	case GrantTypeRefreshToken:
		resp, oerr = h.refreshTokenGrant(r)
	default:
		oerr = ErrUnsupportedGrantType(fmt.Sprintf("Grant type %q not supported", gt))
	}
	if oerr != nil {
		writeOAuthError(w, oerr)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authorizationCodeGrant(r *http.Request) (*TokenResponse, *OAuthError) {
	form := r.PostForm
	code := form.Get("code")
	if code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	authCode, err := h.flows.ConsumeAuthorizationCode(code)
	if err != nil {
		return nil, ErrInvalidGrant("Invalid or expired authorization code")
	}

	clientID := form.Get("client_id")
	if clientID == "" {
		if id, _, ok := r.BasicAuth(); ok {
			clientID = id
		} else {
			clientID = authCode.ClientID
		}
	}
	if clientID != authCode.ClientID {
		return nil, ErrInvalidGrant("Client ID mismatch")
	}
	if form.Get("redirect_uri") != authCode.RedirectURI {
		return nil, ErrInvalidGrant("Redirect URI mismatch")
	}
	if authCode.CodeChallenge != "" &&
		!ValidateCodeChallenge(form.Get("code_verifier"), authCode.CodeChallenge, authCode.CodeChallengeMethod) {
		return nil, ErrInvalidGrant("Invalid code_verifier")
	}
	if oerr := h.authenticateClient(r, clientID); oerr != nil {
		return nil, oerr
	}

	return h.issueTokens(&Session{
		Email:    authCode.UserEmail,
		Name:     authCode.UserName,
		ClientID: clientID,
		Scope:    authCode.Scope,
	})
}

func (h *Handler) refreshTokenGrant(r *http.Request) (*TokenResponse, *OAuthError) {
	refresh := r.PostForm.Get("refresh_token")
	if refresh == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	sess, err := h.sessions.ConsumeRefreshToken(refresh)
	if err != nil {
		return nil, ErrInvalidGrant("Invalid or expired refresh token")
	}
	if id := r.PostForm.Get("client_id"); id != "" && id != sess.ClientID {
		return nil, ErrInvalidGrant("Client ID mismatch")
	}
	if oerr := h.authenticateClient(r, sess.ClientID); oerr != nil {
		return nil, oerr
	}
	if _, err := h.tokens.TokenForUser(r.Context(), sess.Email); err != nil {
		h.logger.Warn("Google token unavailable for refresh", logging.UserHash(sess.Email), logging.Err(err))
		return nil, ErrInvalidGrant("Google authorization expired, please sign in again")
	}

	return h.issueTokens(&Session{
		Email:    sess.Email,
		Name:     sess.Name,
		ClientID: sess.ClientID,
		Scope:    sess.Scope,
	})
}

// issueTokens mints a new access token and a rotated refresh token for sess.
func (h *Handler) issueTokens(sess *Session) (*TokenResponse, *OAuthError) {
	access, err := generateSecureToken(AccessTokenLength)
	if err != nil {
		return nil, ErrServerError("Failed to generate access token")
	}
	refresh, err := generateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, ErrServerError("Failed to generate refresh token")
	}

	now := time.Now()
	accessSess := *sess
	accessSess.ExpiresAt = now.Add(h.config.Security.AccessTokenTTL)
	refreshSess := *sess
	refreshSess.ExpiresAt = now.Add(h.config.Security.RefreshTokenTTL)

	h.sessions.SaveAccessToken(access, &accessSess)
	h.sessions.SaveRefreshToken(refresh, &refreshSess)

	h.logger.Info("Issued access token", logging.UserHash(sess.Email), "client_id", sess.ClientID)
	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.config.Security.AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        sess.Scope,
	}, nil
}

// authenticateClient checks client_secret_basic or client_secret_post
// credentials. Public clients pass without a secret.
func (h *Handler) authenticateClient(r *http.Request, clientID string) *OAuthError {
	client, err := h.clients.GetClient(clientID)
	if err != nil {
		return ErrInvalidClient("Unknown client")
	}
	if client.IsPublic() {
		return nil
	}

	secret := r.PostForm.Get("client_secret")
	if id, s, ok := r.BasicAuth(); ok {
		if id != clientID {
			return ErrInvalidClient("Client ID mismatch")
		}
		secret = s
	}
	if secret == "" {
		return ErrInvalidClient("Client authentication required")
	}
	if err := h.clients.ValidateClientSecret(clientID, secret); err != nil {
		return ErrInvalidClient("Client authentication failed")
	}
	return nil
}

// ServeRevoke implements RFC 7009. Unknown tokens are not an error.
func (h *Handler) ServeRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, ErrInvalidRequest("Failed to parse request"))
		return
	}
	token := r.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, ErrInvalidRequest("token is required"))
		return
	}

	if sess, ok := h.sessions.Revoke(token); ok {
		h.logger.Info("Token revoked", logging.UserHash(sess.Email), "client_id", sess.ClientID)
	}
	h.verifier.Forget(token)

	setSecurityHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// validateScopes accepts non-URL protocol scopes (openid, mcp:tools) and
// rejects Google API scopes the server does not request.
func (h *Handler) validateScopes(scope string) error {
	for _, s := range strings.Fields(scope) {
		if !strings.HasPrefix(s, "https://") {
			continue
		}
		if !slices.Contains(h.config.SupportedScopes, s) {
			return fmt.Errorf("unsupported Google API scope: %s", s)
		}
	}
	return nil
}

// validateRedirectURI follows the OAuth 2.0 Security BCP: no fragments,
// no dangerous schemes, and https for non-loopback hosts when the server
// itself is not on loopback.
func validateRedirectURI(uri, serverResource string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %s", uri)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments: %s", uri)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return fmt.Errorf("redirect_uri must have a scheme: %s", uri)
	}

	if scheme != "http" && scheme != "https" {
		if slices.Contains(DangerousSchemes, scheme) {
			return fmt.Errorf("redirect_uri scheme '%s' is not allowed", parsed.Scheme)
		}
		if !customSchemePattern.MatchString(scheme) {
			return fmt.Errorf("redirect_uri scheme '%s' is not a valid URI scheme", parsed.Scheme)
		}
		return nil
	}

	if parsed.Host == "" {
		return fmt.Errorf("http/https redirect_uri must have a host: %s", uri)
	}
	server, err := url.Parse(serverResource)
	if err != nil {
		return fmt.Errorf("cannot validate redirect_uri: invalid server resource")
	}
	if !isLoopback(server.Hostname()) && !isLoopback(parsed.Hostname()) && scheme != "https" {
		return fmt.Errorf("redirect_uri must use HTTPS: %s", uri)
	}
	return nil
}

func isLoopback(hostname string) bool {
	hostname = strings.Trim(hostname, "[]")
	return slices.Contains(LoopbackAddresses, hostname) || strings.HasPrefix(hostname, "127.")
}
