package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"classbook/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

const tokenIssuer = "classbook"

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenClaims are carried by API bearer tokens.
type TokenClaims struct {
	AccountID int64  `json:"aid"`
	Username  string `json:"usr"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens for API clients.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer uses a random per-process secret when secret is empty,
// so tokens do not survive a restart.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	if ttl <= 0 {
		ttl = models.DefaultTokenTTL * time.Second
	}
	return &TokenIssuer{secret: key, ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(account *models.Account) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &TokenClaims{
		AccountID: account.ID,
		Username:  account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (t *TokenIssuer) Parse(raw string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.AccountID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// bearerToken extracts the token from an "Authorization: Bearer ..." value.
func bearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
