package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenValidator is the external token-validation collaborator. Validate
// checks that the token is genuine and was issued for the claimed user.
type TokenValidator interface {
	Validate(ctx context.Context, token string, userID int) error
}

// TokenService validates HS256 tokens whose subject is the user id.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Validate parses the token and checks its subject against the claimed user.
func (t *TokenService) Validate(_ context.Context, tokenStr string, userID int) error {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub != strconv.Itoa(userID) {
		return ErrInvalidToken
	}
	return nil
}

// CreateForUser issues a token for the given user id with the provided TTL.
// The messenger only validates tokens; issuance lives here for tests and
// local tooling.
func (t *TokenService) CreateForUser(userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}
