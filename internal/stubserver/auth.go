package stubserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sobandev/careerpilot-ai/internal/domain"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	userKey       = "stub_user"

	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type account struct {
	identity     domain.Identity
	passwordHash []byte
}

// grant is one login session. Access tokens carry the generation they were
// issued under; bumping it invalidates them while the refresh token survives.
type grant struct {
	userID     string
	generation int
	revoked    bool
}

type sessionClaims struct {
	SessionID  string `json:"sid"`
	Type       string `json:"typ"`
	Generation int    `json:"gen,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Users returns the registered identities.
func (s *Server) Users() []domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Identity, 0, len(s.users))
	for _, a := range s.users {
		out = append(out, a.identity)
	}
	return out
}

// RevokeAll ends every session, as a server-side sign-out would.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.sessions {
		g.revoked = true
	}
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens
// remain valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.sessions {
		g.generation++
	}
}

// AddUser registers an account directly.
func (s *Server) AddUser(reg domain.Registration) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(reg)
}

func (s *Server) addUserLocked(reg domain.Registration) (domain.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if email == "" || reg.Password == "" {
		return domain.Identity{}, errors.New("email and password are required")
	}
	if reg.Role == "" {
		reg.Role = domain.RoleJobseeker
	}
	if !reg.Role.Valid() {
		return domain.Identity{}, errors.New("invalid role")
	}
	if _, exists := s.emails[email]; exists {
		return domain.Identity{}, errors.New("User already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.MinCost)
	if err != nil {
		return domain.Identity{}, err
	}

	id := domain.Identity{
		ID:       uuid.NewString(),
		Email:    email,
		FullName: reg.FullName,
		Role:     reg.Role,
	}
	s.users[id.ID] = &account{identity: id, passwordHash: hash}
	s.emails[email] = id.ID
	return id, nil
}

func (s *Server) register(c echo.Context) error {
	var req domain.Registration
	if err := c.Bind(&req); err != nil {
		return detailError(http.StatusUnprocessableEntity, "Invalid request body")
	}

	id, err := s.AddUser(req)
	if err != nil {
		return detailError(http.StatusBadRequest, err.Error())
	}
	s.logger.InfoContext(c.Request().Context(), "user registered", "user_id", id.ID, "role", id.Role)

	return c.JSON(http.StatusOK, domain.RegisterResult{
		Message: "Registration successful",
		UserID:  id.ID,
	})
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return detailError(http.StatusUnprocessableEntity, "Invalid request body")
	}

	id, ok := s.authenticate(req.Email, req.Password)
	if !ok {
		s.metrics.Logins.WithLabelValues("rejected").Inc()
		return detailError(http.StatusUnauthorized, "Invalid credentials")
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = &grant{userID: id.ID}
	s.mu.Unlock()

	access, err := s.issue(id, sid, tokenAccess, 0, s.cfg.AccessTTL)
	if err != nil {
		return err
	}
	refresh, err := s.issue(id, sid, tokenRefresh, 0, s.cfg.RefreshTTL)
	if err != nil {
		return err
	}

	s.setCookie(c, accessCookie, access, s.cfg.AccessTTL)
	s.setCookie(c, refreshCookie, refresh, s.cfg.RefreshTTL)
	s.metrics.Logins.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, domain.LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         id,
	})
}

func (s *Server) authenticate(email, password string) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.Identity{}, false
	}
	acct := s.users[userID]
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
		return domain.Identity{}, false
	}
	return acct.identity, true
}

// logout revokes the presented session, if any, and always clears cookies.
func (s *Server) logout(c echo.Context) error {
	if raw := presentedToken(c); raw != "" {
		if claims, err := s.parse(raw); err == nil {
			s.mu.Lock()
			if g, ok := s.sessions[claims.SessionID]; ok {
				g.revoked = true
			}
			s.mu.Unlock()
		}
	}

	s.clearCookie(c, accessCookie)
	s.clearCookie(c, refreshCookie)
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		return detailError(http.StatusUnauthorized, "Missing refresh token")
	}

	claims, err := s.parse(cookie.Value)
	if err != nil || claims.Type != tokenRefresh {
		return detailError(http.StatusUnauthorized, "Invalid refresh token")
	}

	s.mu.Lock()
	g, ok := s.sessions[claims.SessionID]
	if !ok || g.revoked {
		s.mu.Unlock()
		return detailError(http.StatusUnauthorized, "Session revoked")
	}
	acct, ok := s.users[g.userID]
	generation := g.generation
	s.mu.Unlock()
	if !ok {
		return detailError(http.StatusUnauthorized, "Invalid refresh token")
	}

	access, err := s.issue(acct.identity, claims.SessionID, tokenAccess, generation, s.cfg.AccessTTL)
	if err != nil {
		return err
	}
	s.setCookie(c, accessCookie, access, s.cfg.AccessTTL)
	s.metrics.Refreshes.Inc()

	return c.JSON(http.StatusOK, map[string]string{"access_token": access})
}

// me returns the caller's identity, or null when the account is gone.
func (s *Server) me(c echo.Context) error {
	id := currentUser(c)
	s.mu.RLock()
	acct, ok := s.users[id.ID]
	s.mu.RUnlock()
	if !ok {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, acct.identity)
}

// requireUser accepts the access token from the cookie first, then from a
// bearer header.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := presentedToken(c)
		if raw == "" {
			return detailError(http.StatusUnauthorized, "Not authenticated")
		}

		claims, err := s.parse(raw)
		if err != nil || claims.Type != tokenAccess {
			return detailError(http.StatusUnauthorized, "Invalid or expired token")
		}

		s.mu.RLock()
		g, ok := s.sessions[claims.SessionID]
		valid := ok && !g.revoked && g.generation == claims.Generation
		var id domain.Identity
		if acct, found := s.users[claims.Subject]; found {
			id = acct.identity
		} else {
			id = domain.Identity{ID: claims.Subject}
		}
		s.mu.RUnlock()

		if !valid {
			return detailError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(userKey, id)
		return next(c)
	}
}

func currentUser(c echo.Context) domain.Identity {
	id, _ := c.Get(userKey).(domain.Identity)
	return id
}

func presentedToken(c echo.Context) string {
	if cookie, err := c.Cookie(accessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (s *Server) issue(id domain.Identity, sid, typ string, generation int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		SessionID:  sid,
		Type:       typ,
		Generation: generation,
		Email:      id.Email,
		Role:       string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cpstub",
			Subject:   id.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

func (s *Server) parse(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer("cpstub"))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Server) setCookie(c echo.Context, name, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
