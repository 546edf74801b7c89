package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

const issuer = "roomsync"

// Claims are the claims of a bearer token. The subject is the user id.
type Claims struct {
	Privileged bool `json:"privileged,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs a token for the user that expires after expiration.
func NewToken(userID string, privileged bool, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := &Claims{
		Privileged: privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", exp, err
	}
	return signed, exp, nil
}

// Verify parses the token and returns the identity it carries.
func Verify(token string, secret []byte) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case err == nil && parsed.Valid:
		if claims.Subject == "" {
			return Identity{}, ErrTokenInvalid
		}
		return Identity{UserID: claims.Subject, Privileged: claims.Privileged}, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Identity{}, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Identity{}, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrTokenExpired
	default:
		return Identity{}, ErrUnrecognizedToken
	}
}

// TokenProvider derives the identity from a bearer token.
// While no valid token is set it falls back to an anonymous identity.
type TokenProvider struct {
	secret   []byte
	fallback *Anonymous
	logger   *slog.Logger

	mu    sync.RWMutex
	token string
}

func NewTokenProvider(secret []byte, logger *slog.Logger) *TokenProvider {
	return &TokenProvider{
		secret:   secret,
		fallback: NewAnonymous(),
		logger:   logger,
	}
}

// SetToken replaces the bearer token. It returns the identity of the token, or an error
// if the token does not verify. An invalid token is not kept.
func (p *TokenProvider) SetToken(token string) (Identity, error) {
	id, err := Verify(token, p.secret)
	if err != nil {
		return Identity{}, err
	}
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	return id, nil
}

// ClearToken drops the bearer token, reverting to the anonymous identity.
func (p *TokenProvider) ClearToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func (p *TokenProvider) fromToken() (Identity, bool) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return Identity{}, false
	}
	id, err := Verify(token, p.secret)
	if err != nil {
		p.logger.Warn("bearer token rejected", slog.String("error", err.Error()))
		return Identity{}, false
	}
	return id, true
}

func (p *TokenProvider) Current() (Identity, bool) {
	if id, ok := p.fromToken(); ok {
		return id, true
	}
	return p.fallback.Current()
}

func (p *TokenProvider) Ensure(ctx context.Context) (Identity, error) {
	if id, ok := p.fromToken(); ok {
		return id, nil
	}
	return p.fallback.Ensure(ctx)
}
