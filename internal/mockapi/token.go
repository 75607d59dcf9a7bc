package mockapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"reuse-console/internal/middleware"
	"reuse-console/internal/model"
)

var (
	ErrTokenRevoked = errors.New("token revoked")
	ErrIDToken      = errors.New("id token has no email claim")
)

type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(a *account, secret string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := &Claims{
		Email: a.Email,
		Role:  a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	return signed, exp, err
}

func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// verifier checks the signature, expiry and revocation of access tokens.
func (s *Server) verifier() middleware.TokenVerifier {
	return func(tokenString string) (middleware.Identity, error) {
		if s.State.Revoked(tokenString) {
			return middleware.Identity{}, ErrTokenRevoked
		}
		claims, err := ParseToken(tokenString, s.Config.SecretKey)
		if err != nil {
			return middleware.Identity{}, err
		}
		return middleware.Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
	}
}

// googleEmail reads the email claim of a Google ID token. The mock does not
// check Google's signature.
func googleEmail(idToken string) (string, string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", "", err
	}
	email, _ := claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return "", "", ErrIDToken
	}
	name, _ := claims["name"].(string)
	return email, name, nil
}
