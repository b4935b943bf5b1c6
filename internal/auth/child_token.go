package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for child session tokens that fail verification.
var ErrInvalidToken = errors.New("invalid child session token")

const childTokenIssuer = "reward-ticket-service"

// ChildClaims is the payload of a child session cookie.
type ChildClaims struct {
	ChildID  string `json:"childId"`
	FamilyID string `json:"familyId"`
	jwt.RegisteredClaims
}

// ChildTokens verifies child session cookies signed with HS256 by the
// login service.
type ChildTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewChildTokens creates a ChildTokens with the given HMAC secret and lifetime.
func NewChildTokens(secret string, ttl time.Duration) *ChildTokens {
	return &ChildTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Verify checks the signature and expiry and returns the child it names.
func (t *ChildTokens) Verify(token string) (Child, error) {
	var claims ChildClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(childTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Child{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ChildID == "" || claims.FamilyID == "" {
		return Child{}, fmt.Errorf("%w: missing child or family", ErrInvalidToken)
	}
	return Child{ID: claims.ChildID, FamilyID: claims.FamilyID}, nil
}
