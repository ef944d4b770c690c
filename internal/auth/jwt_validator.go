package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	errNilToken      = errors.New("auth: token is nil")
	errNoAlgorithm   = errors.New("auth: token missing algorithm")
	errNoSubject     = errors.New("auth: token missing subject")
	errNoneAlgorithm = errors.New("auth: token uses none algorithm")
)

// TokenValidator checks the claims of an already signature-verified token.
// Every accepted token must name a subject and carry an expiry.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	// Algorithm pins the signing algorithm; empty accepts any but "none".
	Algorithm jwa.SignatureAlgorithm
}

func (v TokenValidator) Validate(tok jwt.Token, alg jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return errNilToken
	case alg == "":
		return errNoAlgorithm
	case alg == jwa.NoSignature:
		return errNoneAlgorithm
	case v.Algorithm != "" && alg != v.Algorithm:
		return fmt.Errorf("auth: unexpected token algorithm %s", alg)
	case strings.TrimSpace(tok.Subject()) == "":
		return errNoSubject
	}
	return jwt.Validate(tok, v.claimOptions(now)...)
}

func (v TokenValidator) claimOptions(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithAcceptableSkew(max(v.ClockSkew, 0)),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}
