package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/darasahq/darasa/core/user"
)

// passwordChangeGuard blocks users flagged with a pending password change
// from everything but changing the password or logging out.
func passwordChangeGuard() echo.MiddlewareFunc {
	exempt := map[string]struct{}{
		"/v1/users/change-password": {},
		"/v1/users/logout":          {},
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if usr, ok := ctx.Get(contextUserKey).(user.User); ok && usr.MustChangePassword {
				if _, ok := exempt[ctx.Path()]; !ok {
					return errPasswordChangeReqd
				}
			}
			return next(ctx)
		}
	}
}

// roleMiddleware restricts an endpoint to the given roles.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

func teacherMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleTeacher)
}

func studentMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.StudentRoles...)
}
