package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

const OperatorRole = "operator"

var ErrNotOperator = errors.New("token does not carry the operator role")

// OperatorJWT signs and verifies HS256 operator tokens for the admin routes.
type OperatorJWT struct {
	secret []byte
	issuer string
}

func NewOperatorJWT(secret, issuer string) (*OperatorJWT, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, fmt.Errorf("operator jwt secret must be at least 16 characters")
	}
	return &OperatorJWT{secret: []byte(secret), issuer: issuer}, nil
}

type operatorJWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (o *OperatorJWT) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorJWTClaims{
		Role: OperatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    o.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(o.secret)
}

func (o *OperatorJWT) VerifyOperator(raw string) (ports.OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &operatorJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return o.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(o.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return ports.OperatorClaims{}, err
	}
	claims, ok := parsed.Claims.(*operatorJWTClaims)
	if !ok || !parsed.Valid {
		return ports.OperatorClaims{}, errors.New("invalid token claims")
	}
	if claims.Role != OperatorRole {
		return ports.OperatorClaims{}, ErrNotOperator
	}
	return ports.OperatorClaims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

var _ ports.OperatorVerifier = (*OperatorJWT)(nil)
