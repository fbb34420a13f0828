package models

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims are the JWT claims for the back-office ops API. Provider
// callbacks never carry JWTs; they authenticate with HMAC signatures and
// session tokens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}
