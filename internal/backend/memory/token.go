package memory

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "studygenie-memory"

var errInvalidToken = errors.New("invalid session token")

// sessionClaims are the claims of a memory-mode session token.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// tokenIssuerService signs and validates HS256 session tokens.
type tokenIssuerService struct {
	signingKey []byte
	clock      func() time.Time
}

func (s *tokenIssuerService) issue(userID, email string, ttl time.Duration) (string, time.Time, error) {
	now := s.clock()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// validate returns the claims of a well-formed, unexpired token.
func (s *tokenIssuerService) validate(tokenString string) (*sessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Join(errInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
