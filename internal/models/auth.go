package models

import "github.com/golang-jwt/jwt/v5"

// OperatorRole gates access to the run trigger and history API.
type OperatorRole string

const (
	RoleOperator OperatorRole = "operator"
	RoleViewer   OperatorRole = "viewer"
)

// JWTClaims represents the JWT payload for operator tokens.
type JWTClaims struct {
	Role OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is returned when minting an operator token.
type IssuedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
