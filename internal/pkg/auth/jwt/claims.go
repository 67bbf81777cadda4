package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set issued by the identity provider.
// The server never authenticates credentials itself; it trusts a verified Payload.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the opaque user identifier every domain operation is keyed by.
	ID string `json:"id"`

	// Username, FullName and Avatar seed the user's profile on first sync.
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Avatar   string `json:"avatar,omitempty"`
}
