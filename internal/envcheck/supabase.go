package envcheck

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var errNoRole = errors.New("JWT has no role claim")

// jwtRole returns the role claim of a Supabase API key. Signatures are not
// checked; the project JWT secret is not part of the env file.
func jwtRole(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("not a JWT: %w", err)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return "", errNoRole
	}
	return role, nil
}

func jwtRoleIs(token, role string) bool {
	got, err := jwtRole(token)
	return err == nil && got == role
}

func expectRole(token, want string) string {
	role, err := jwtRole(token)
	if err != nil {
		return err.Error()
	}
	if role != want {
		return fmt.Sprintf("JWT role is %q, expected %q", role, want)
	}
	return ""
}
