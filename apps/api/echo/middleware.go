package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core/user"
)

func roleMiddleware(allowed func(usr user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if allowed(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets admins and teachers through. Per-class checks are left to the report service.
func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.User.IsStaff)
}

func studentMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.User.IsStudent)
}
