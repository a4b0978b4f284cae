package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningKey:    []byte(core.Conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	contextUserKey    = "user"
	contextStudentKey = "student"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func GetUserClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(core.Conf.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: usr.Email,
		Role:  usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextToken(ctx echo.Context) (*jwt.Token, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		return token, nil
	}
	return nil, errUnauthorized
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, err := getContextToken(ctx); err == nil {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// getContextStudent resolves the student profile of the authenticated user.
func getContextStudent(ctx echo.Context, svc *user.Service) (user.Student, error) {
	if st, ok := ctx.Get(contextStudentKey).(user.Student); ok {
		return st, nil
	}

	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return user.Student{}, err
	}
	if !usr.IsStudent() {
		return user.Student{}, errHttpForbidden
	}

	st, err := svc.GetStudentByUserID(ctx.Request().Context(), usr.ID)
	if err != nil {
		return user.Student{}, errors.Wrap(err, "finding student profile")
	}
	ctx.Set(contextStudentKey, st)
	return st, nil
}

// authMiddleware runs after the JWT signature check. It rejects revoked
// tokens, deactivated accounts and tokens issued before the last
// password change.
func authMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, err := getContextToken(ctx)
			if err != nil {
				return err
			}

			revoked, err := svc.IsTokenRevoked(ctx.Request().Context(), token.Raw)
			if err != nil {
				return errors.Wrap(err, "checking token revocation")
			}
			if revoked {
				return errTokenRevoked
			}

			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := getContextUser(ctx, svc, claims)
			if err != nil {
				if core.IsNotFound(errors.Cause(err)) {
					return errUnauthorized
				}
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if !usr.PasswordChangedAt.IsZero() && claims.IssuedAt < usr.PasswordChangedAt.Unix() {
				return errStaleToken
			}
			return next(ctx)
		}
	}
}
