// Package auth carries the already-resolved actor identity across the HTTP
// and WebSocket boundaries. It transports identity only; deciding who the
// actor is belongs to the upstream authentication collaborator.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"breederhub/internal/domain"
)

// TokenService wraps JWT creation and validation.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForActor creates a staff-side JWT carrying the resolved tenant and
// acting party.
func (t *TokenService) CreateForActor(actor domain.Actor) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"tenant_id": actor.TenantID,
		"party_id":  actor.PartyID,
		"iat":       now.Unix(),
		"exp":       now.Add(t.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// CreateForPortal creates a buyer-portal JWT carrying the external identity
// key used to address the external live-update registry.
func (t *TokenService) CreateForPortal(identityKey string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"portal_key": identityKey,
		"iat":        now.Unix(),
		"exp":        now.Add(t.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its claims.
func (t *TokenService) Parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims, nil
	}
	return nil, jwt.ErrTokenMalformed
}

// ParseActor validates a staff token and extracts the actor.
func (t *TokenService) ParseActor(tokenStr string) (domain.Actor, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	tenantID, ok1 := claims["tenant_id"].(float64)
	partyID, ok2 := claims["party_id"].(float64)
	if !ok1 || !ok2 || tenantID <= 0 || partyID <= 0 {
		return domain.Actor{}, jwt.ErrTokenInvalidClaims
	}
	return domain.Actor{TenantID: int64(tenantID), PartyID: int64(partyID)}, nil
}

// ParsePortalKey validates a portal token and extracts the identity key.
func (t *TokenService) ParsePortalKey(tokenStr string) (string, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	key, ok := claims["portal_key"].(string)
	if !ok || key == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return key, nil
}
