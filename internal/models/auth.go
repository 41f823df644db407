package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the access token payload issued by the identity service.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id"`
	RestaurantID string   `json:"restaurant_id,omitempty"`
	Role         UserRole `json:"role"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	jwt.RegisteredClaims
}

// AuthorizationContext is the resolved capability passed into every core operation.
type AuthorizationContext struct {
	UserID       string
	TenantID     string
	Role         UserRole
	RestaurantID string
	FullName     string
}

// FromClaims builds an AuthorizationContext from verified token claims.
func FromClaims(claims *JWTClaims) *AuthorizationContext {
	if claims == nil {
		return nil
	}
	return &AuthorizationContext{
		UserID:       claims.UserID,
		TenantID:     claims.TenantID,
		Role:         claims.Role,
		RestaurantID: claims.RestaurantID,
		FullName:     claims.FullName,
	}
}

// IsSupervisor reports whether the caller is a manager or admin in its tenant.
func (a *AuthorizationContext) IsSupervisor() bool {
	return a != nil && a.Role.IsSupervisor()
}
