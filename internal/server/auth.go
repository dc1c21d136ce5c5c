package server

import (
	"crypto/subtle"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth holds the admin API credentials. PasswordHash is bcrypt.
type AdminAuth struct {
	Enabled      bool
	Username     string
	PasswordHash string
}

// HashPassword returns the bcrypt hash stored in server.admin.passwordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func (a AdminAuth) check(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(pass)) == nil
	return userOK && passOK
}

func basicAuth(a AdminAuth) echo.MiddlewareFunc {
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: "floorbot",
		Validator: func(user, pass string, _ echo.Context) (bool, error) {
			return a.check(user, pass), nil
		},
	})
}
