package model

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the typed payload of an access token.
// Subject carries the user id in decimal form.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// SubjectID parses the subject claim as a user id.
func (c *TokenClaims) SubjectID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenPair is returned to clients after a successful login.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
