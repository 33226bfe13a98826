package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator issues and verifies HS256 bearer tokens. The token subject
// identifies the caller for rate limiting and prediction logs.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for subject. A non-positive ttl falls back to the
// authenticator default.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if ttl <= 0 {
		ttl = a.ttl
	}
	now := a.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns the subject of a valid token.
func (a *Authenticator) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

type subjectContextKey struct{}

const anonymousSubject = "anonymous"

func subjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectContextKey{}).(string); ok {
		return s
	}
	return anonymousSubject
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.auth == nil {
			return next(c)
		}
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
			return writeError(c, http.StatusUnauthorized, "authentication_error", "missing bearer token", "missing_token")
		}
		subject, err := s.auth.Verify(strings.TrimSpace(token))
		if err != nil {
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
			return writeError(c, http.StatusUnauthorized, "authentication_error", "could not validate credentials", "invalid_token")
		}
		req := c.Request()
		c.SetRequest(req.WithContext(context.WithValue(req.Context(), subjectContextKey{}, subject)))
		return next(c)
	}
}
