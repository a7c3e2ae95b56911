package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AdminScope is the JWT scope required by parameter-update methods.
const AdminScope = "vault.admin"

// AdminAuthConfig configures the JWT check guarding administrative methods.
type AdminAuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

// AdminAuthenticator validates HMAC-signed JWTs carrying the admin scope.
type AdminAuthenticator struct {
	cfg    AdminAuthConfig
	secret []byte
}

// NewAdminAuthenticator returns nil when no secret is configured, disabling
// the admin surface.
func NewAdminAuthenticator(cfg AdminAuthConfig) *AdminAuthenticator {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &AdminAuthenticator{cfg: cfg, secret: []byte(secret)}
}

// Authenticate verifies the bearer JWT on the request and checks the admin
// scope.
func (a *AdminAuthenticator) Authenticate(r *http.Request) error {
	header := r.Header.Get("X-Admin-Token")
	if header == "" {
		header = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if header == "" {
		return errors.New("missing admin token")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.cfg.ClockSkew),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(header, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid admin token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid admin token")
	}
	if iss := strings.TrimSpace(a.cfg.Issuer); iss != "" {
		got, _ := claims.GetIssuer()
		if got != iss {
			return errors.New("admin token issuer mismatch")
		}
	}
	if aud := strings.TrimSpace(a.cfg.Audience); aud != "" {
		got, _ := claims.GetAudience()
		found := false
		for _, v := range got {
			if v == aud {
				found = true
				break
			}
		}
		if !found {
			return errors.New("admin token audience mismatch")
		}
	}
	if !hasScope(claims, a.cfg.ScopeClaim, AdminScope) {
		return errors.New("admin scope required")
	}
	return nil
}

func hasScope(claims jwt.MapClaims, claim, want string) bool {
	raw, ok := claims[claim]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == want {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
