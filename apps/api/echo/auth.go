package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
)

var contextTokenKey = "userToken"

// newJWTConfig returns the JWT auth middleware config. Tokens are issued by the identity service
// (or the admin CLI) and signed with the shared secret key.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: user.SigningMethod.Alg(),
		ContextKey:    contextTokenKey,
		Claims:        new(user.Claims),
	}
}

func getContextClaims(ctx echo.Context) (user.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*user.Claims); ok {
			return *claims, nil
		}
	}
	return user.Claims{}, errUnauthorized
}

// getContextUser returns the actor of the request, as carried by its token.
func getContextUser(ctx echo.Context) (user.User, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	return claims.User(), nil
}
