package wsgateway

import (
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// verifyBearerToken checks an HS256 token signed with secret and returns its
// subject claim as the user id.
func verifyBearerToken(tokenString, secret string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("missing token")
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return claims.Subject, nil
}
