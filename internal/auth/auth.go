// Package auth implements the control plane's authorization scheme:
// a shared-secret API key, or an HMAC-SHA256 signed bearer token. No
// example repo in the corpus carries a JWT/HMAC dependency (see
// DESIGN.md), and spec.md §6 specifies this exact compact format rather
// than JWT, so this is built on stdlib crypto/hmac + encoding/json.
//
// The authorization decision order (open mode when nothing is
// configured, API key check, then token roles-intersect-allowed-set) is
// grounded on original_source/src/auth.rs's authorize_jwt, reimplemented
// against the HMAC token format instead of JWT.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
)

// Config holds the shared secrets and allowed-role set for authorization.
type Config struct {
	APIKey       string   // x-api-key header value; empty disables this path
	TokenSecret  string   // HMAC signing secret; empty disables token auth
	AllowedRoles []string // roles a token must intersect to be authorized
}

// Claims is the signed payload of a bearer token.
type Claims struct {
	Sub   string   `json:"sub"`
	Exp   int64    `json:"exp"` // unix seconds
	Roles []string `json:"roles"`
}

// Authorizer evaluates incoming requests against Config.
type Authorizer struct {
	cfg Config
}

// New builds an Authorizer.
func New(cfg Config) *Authorizer {
	return &Authorizer{cfg: cfg}
}

// Open reports whether neither an API key nor a token secret is
// configured, meaning every request is allowed (dev mode).
func (a *Authorizer) Open() bool {
	return a.cfg.APIKey == "" && a.cfg.TokenSecret == ""
}

// Sign produces a bearer token string for claims, usable by tests and
// operator tooling. Format: base64url(json(claims)) + "." + base64url(hmac).
func (a *Authorizer) Sign(claims Claims) (string, error) {
	if a.cfg.TokenSecret == "" {
		return "", errors.New("auth: no token secret configured")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	encPayload := base64.RawURLEncoding.EncodeToString(payload)
	sig := a.sign(encPayload)
	return encPayload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (a *Authorizer) sign(encPayload string) []byte {
	mac := hmac.New(sha256.New, []byte(a.cfg.TokenSecret))
	mac.Write([]byte(encPayload))
	return mac.Sum(nil)
}

// verify decodes and validates a token string, checking signature and
// expiry. It does not check roles; callers do that against their
// specific authorization requirement.
func (a *Authorizer) verify(token string) (Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return Claims{}, errors.New("auth: malformed token")
	}
	encPayload, encSig := parts[0], parts[1]

	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: decode signature: %w", err)
	}
	expected := a.sign(encPayload)
	if !hmac.Equal(sig, expected) {
		return Claims{}, errors.New("auth: signature mismatch")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: decode payload: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: unmarshal claims: %w", err)
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return Claims{}, errors.New("auth: token expired")
	}
	return claims, nil
}

// rolesIntersect reports whether any role in claimed also appears in
// allowed (case-insensitive), matching original_source/src/auth.rs's
// roles_authorized.
func rolesIntersect(claimed, allowed []string) bool {
	for _, c := range claimed {
		for _, want := range allowed {
			if strings.EqualFold(c, want) {
				return true
			}
		}
	}
	return false
}

// Authorize evaluates a request's credentials against the precedence
// order from spec.md §4.6: open mode, then API key, then HMAC token with
// a roles check.
func (a *Authorizer) Authorize(apiKey, bearerToken string) (domain.Principal, bool) {
	if a.Open() {
		return domain.Principal{}, true
	}

	if a.cfg.APIKey != "" && apiKey != "" {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(a.cfg.APIKey)) == 1 {
			return domain.Principal{Subject: "api-key"}, true
		}
	}

	if a.cfg.TokenSecret != "" && bearerToken != "" {
		claims, err := a.verify(bearerToken)
		if err == nil && rolesIntersect(claims.Roles, a.cfg.AllowedRoles) {
			return domain.Principal{Subject: claims.Sub, Roles: claims.Roles}, true
		}
	}

	return domain.Principal{}, false
}
