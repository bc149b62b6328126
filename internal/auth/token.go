// Package auth issues and checks access tokens and guards routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"labreserve/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the decoded content of an access token.
type Claims struct {
	Username  string     `json:"user"`
	UserID    int64      `json:"id"`
	Role      model.Role `json:"rol"`
	ExpiresAt time.Time  `json:"exp"`
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a signed token carrying sub, id, rol and exp.
func (m *TokenManager) Issue(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"sub": user.Username,
		"id":  user.ID,
		"rol": string(user.Role),
		"exp": m.now().Add(m.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and extracts the claims. Every
// failure is reported as ErrInvalidToken.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok || m.now().Unix() >= int64(exp) {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	id, _ := claims["id"].(float64)
	rol, _ := claims["rol"].(string)
	if sub == "" || id <= 0 || !model.Role(rol).Valid() {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Username:  sub,
		UserID:    int64(id),
		Role:      model.Role(rol),
		ExpiresAt: time.Unix(int64(exp), 0).UTC(),
	}, nil
}
