// Package auth issues short-lived tokens proving a customer passed SMS
// verification, so later checkout steps can charge a card on file.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "bookings"
	DefaultTTL  = 15 * time.Minute
)

// ErrInvalidToken covers every rejection: bad signature, expiry, wrong subject.
var ErrInvalidToken = errors.New("auth: invalid verification token")

// VerificationClaims carries the verified phone next to the registered claims.
type VerificationClaims struct {
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks HS256 verification tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source (tests).
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

// Issue returns a signed token whose subject is customerID.
func (i *TokenIssuer) Issue(customerID, phone string) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("auth: token secret not configured")
	}
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("auth: customer id required")
	}
	now := i.now()
	claims := VerificationClaims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   customerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the token and that it was issued for customerID.
func (i *TokenIssuer) Verify(tokenString, customerID string) (*VerificationClaims, error) {
	if len(i.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return nil, ErrInvalidToken
	}
	claims := &VerificationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(customerID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
