// Package donorlink signs the "your claims" links emailed to donors. A link
// carries an HS256 JWT naming the donor's email, so the claims lookup needs
// no account and cannot be queried by guessing addresses.
package donorlink

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid donor link")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("donor link expired")
)

const (
	issuer   = "giftdrive"
	audience = "donor-claims"

	// ClaimsPath is the API route a link opens.
	ClaimsPath = "/api/donors/claims"
)

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Signer issues and verifies donor tokens.
type Signer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner returns a signer whose tokens live for ttl. baseURL is the
// public origin links point at; URL returns "" when it is empty.
func NewSigner(secret string, ttl time.Duration, baseURL string) *Signer {
	return &Signer{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Token signs a token for email.
func (s *Signer) Token(email string) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Email: normalize(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a token and returns the email it was issued for.
func (s *Signer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}

// URL returns the full claims link for email.
func (s *Signer) URL(email string) (string, error) {
	if s.baseURL == "" {
		return "", nil
	}
	token, err := s.Token(email)
	if err != nil {
		return "", err
	}
	return s.baseURL + ClaimsPath + "?" + url.Values{"token": {token}}.Encode(), nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
