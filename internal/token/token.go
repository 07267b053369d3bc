// Package token issues and verifies the short-lived HS256 proxy tokens that
// are the only credential a sandbox ever holds.
package token

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
)

// Claims is the token payload: {sandboxId, sessionId?, exp, iat}.
type Claims struct {
	SandboxID string `json:"sandboxId"`
	SessionID string `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

// VerifyFailure classifies why Verify rejected a token.
type VerifyFailure string

const (
	FailureExpired VerifyFailure = "EXPIRED"
	FailureInvalid VerifyFailure = "INVALID"
)

// VerifyError reports a classified verification failure.
type VerifyError struct {
	Failure VerifyFailure
	Reason  string
}

func (e *VerifyError) Error() string { return fmt.Sprintf("%s: %s", e.Failure, e.Reason) }

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// parseExpiresIn accepts "{n}m|{n}h|{n}d" or a bare integer seconds string.
func parseExpiresIn(expiresIn string) (time.Duration, error) {
	if expiresIn == "" {
		return 0, errors.New("token: empty expiresIn")
	}
	if m := durationPattern.FindStringSubmatch(expiresIn); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		switch m[2] {
		case "s":
			return time.Duration(n) * time.Second, nil
		case "m":
			return time.Duration(n) * time.Minute, nil
		case "h":
			return time.Duration(n) * time.Hour, nil
		case "d":
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("token: invalid expiresIn %q", expiresIn)
}

// CreateParams configures Create.
type CreateParams struct {
	Secret    string
	SandboxID string
	SessionID string // optional
	ExpiresIn string // "{n}m|{n}h|{n}d" or bare seconds; default "2h"
}

// Create issues a signed HS256 token.
func Create(p CreateParams) (string, error) {
	if p.Secret == "" {
		return "", errs.Validation("TOKEN_SECRET_REQUIRED", "token: secret must not be empty")
	}
	if p.SandboxID == "" {
		return "", errs.Validation("TOKEN_SANDBOX_ID_REQUIRED", "token: sandboxId must not be empty")
	}
	expiresIn := p.ExpiresIn
	if expiresIn == "" {
		expiresIn = "2h"
	}
	ttl, err := parseExpiresIn(expiresIn)
	if err != nil {
		return "", errs.Validation("TOKEN_EXPIRES_IN_INVALID", err.Error())
	}

	now := time.Now()
	claims := Claims{
		SandboxID: p.SandboxID,
		SessionID: p.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(p.Secret))
}

// Verify validates token with secret and returns its claims, classifying any
// failure as FailureExpired or FailureInvalid.
func Verify(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &VerifyError{Failure: FailureExpired, Reason: "token expired"}
		}
		return nil, &VerifyError{Failure: FailureInvalid, Reason: err.Error()}
	}
	if !parsed.Valid {
		return nil, &VerifyError{Failure: FailureInvalid, Reason: "token not valid"}
	}
	if claims.SandboxID == "" {
		return nil, &VerifyError{Failure: FailureInvalid, Reason: "missing sandboxId claim"}
	}
	return claims, nil
}
