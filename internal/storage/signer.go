// Package storage keeps generated documents and archives and hands out
// time-limited URLs for them.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const urlAudience = "blob"

// DefaultURLTTL is how long a signed URL stays valid.
const DefaultURLTTL = 15 * time.Minute

var (
	// ErrURLExpired is returned when a signed URL is past its expiry. The
	// URL can be regenerated with RefreshURL.
	ErrURLExpired = errors.New("signed URL expired")
	// ErrInvalidURL is returned for tokens that are malformed or not signed by us.
	ErrInvalidURL = errors.New("invalid signed URL")
)

// SignedURL is a time-limited link to a stored blob.
type SignedURL struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// blobClaims carries the blob key in the token subject.
type blobClaims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens naming a blob key.
type Signer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner creates a signer. URLs are baseURL joined with the token.
func NewSigner(secret string, ttl time.Duration, baseURL string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Signer{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Sign issues a URL for key.
func (s *Signer) Sign(key string) (SignedURL, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &blobClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			Audience:  jwt.ClaimStrings{urlAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return SignedURL{}, fmt.Errorf("failed to sign URL: %w", err)
	}

	return SignedURL{
		URL:       s.baseURL + "/" + tokenString,
		Token:     tokenString,
		ExpiresAt: expiresAt.Truncate(time.Second),
	}, nil
}

// Verify returns the blob key named by a token. Expired tokens return
// ErrURLExpired.
func (s *Signer) Verify(tokenString string) (string, error) {
	return s.parse(tokenString,
		jwt.WithAudience(urlAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
}

// Refresh re-signs the key of a token that carries a valid signature, even
// when that token has expired.
func (s *Signer) Refresh(tokenString string) (SignedURL, error) {
	key, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return SignedURL{}, err
	}
	return s.Sign(key)
}

func (s *Signer) parse(tokenString string, opts ...jwt.ParserOption) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: token string is empty", ErrInvalidURL)
	}

	claims := &blobClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrURLExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidURL
	}

	return claims.Subject, nil
}
