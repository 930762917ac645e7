// Package token verifies and issues the signed session tokens that carry a
// principal's identity. Tokens are HS256 JWTs with sub/email, role and exp
// claims.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted at startup.
const MinSecretLength = 32

// Claims are the token claims this service reads and writes.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates token signatures and expiry.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a Verifier. It fails when the secret is absent or too
// short so that a misconfigured process never starts.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify checks the token and returns its principal. Every failure,
// including an empty token, matches domain.ErrInvalidToken.
func (v *Verifier) Verify(raw string) (domain.Principal, error) {
	if raw == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing token", domain.ErrInvalidToken)
	}

	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	if !tok.Valid {
		return domain.Principal{}, domain.ErrInvalidToken
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Principal{}, fmt.Errorf("%w: no subject", domain.ErrInvalidToken)
	}

	return domain.Principal{
		Email: email,
		Role:  domain.ParseRole(claims.Role),
	}, nil
}

// Issuer signs new tokens. It is used by the development token endpoint and
// by tests; production tokens normally come from the login service.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer whose tokens expire after ttl.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) (*Issuer, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the principal and returns it with its expiry.
func (i *Issuer) Issue(p domain.Principal) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		Email: p.Email,
		Role:  string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func checkSecret(secret []byte) error {
	if len(secret) == 0 {
		return errors.New("token secret is required")
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	return nil
}
