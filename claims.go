package authcore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass discriminates the two kinds of tokens the service mints.
type TokenClass string

const (
	// TokenClassAccess is the short-lived per-request credential
	TokenClassAccess TokenClass = "access"
	// TokenClassRefresh is the long-lived credential used only to
	// obtain a new access token
	TokenClassRefresh TokenClass = "refresh"
)

// IsValid checks the class is one of the closed set
func (c TokenClass) IsValid() bool {
	return c == TokenClassAccess || c == TokenClassRefresh
}

// Claims represents the decoded, verified payload of a token
type Claims interface {
	Subject() string
	UserID() string
	Role() UserRole
	Class() TokenClass
	HasRole(role UserRole) bool
	Satisfies(minRole UserRole) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of Claims. The role claim is
// a snapshot taken at mint time; the Authorizer re-checks live account
// state where the contract requires it.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID        string     `json:"uid,omitempty"`
	UserRole   UserRole   `json:"role,omitempty"`
	TokenClass TokenClass `json:"cls,omitempty"`
}

// Verify interface compliance
var _ Claims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the account ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role snapshot taken at mint time
func (c *JWTClaims) Role() UserRole {
	return c.UserRole
}

// Class returns the token class discriminator
func (c *JWTClaims) Class() TokenClass {
	return c.TokenClass
}

// HasRole checks if the claims carry a specific role
func (c *JWTClaims) HasRole(role UserRole) bool {
	return c.UserRole == role
}

// Satisfies checks if the role claim meets the minimum required role
func (c *JWTClaims) Satisfies(minRole UserRole) bool {
	return RoleSatisfies(c.UserRole, minRole)
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
