package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
)

type dashboardApi struct {
	svc    *dashboard.Service
	usrSvc *user.Service
}

func registerDashboardAPI(g *echo.Group, jwt, auth, pwdGuard echo.MiddlewareFunc, svc *dashboard.Service, usrSvc *user.Service) {
	api := dashboardApi{svc: svc, usrSvc: usrSvc}

	dg := g.Group("/dashboard", jwt, auth, pwdGuard)
	dg.GET("", api.retrieve)
}

// retrieve serves the dashboard matching the authenticated user's role.
func (api *dashboardApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rctx := ctx.Request().Context()
	switch usr.Role {
	case user.RoleSecondaryStudent:
		st, err := getContextStudent(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		dash, err := api.svc.SecondaryStudent(rctx, st)
		if err != nil {
			return errors.Wrap(err, "building secondary student dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	case user.RoleUniversityStudent:
		st, err := getContextStudent(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		dash, err := api.svc.UniversityStudent(rctx, st)
		if err != nil {
			return errors.Wrap(err, "building university student dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	case user.RoleTeacher:
		dash, err := api.svc.Teacher(rctx, usr)
		if err != nil {
			return errors.Wrap(err, "building teacher dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	case user.RoleParent:
		dash, err := api.svc.Parent(rctx, usr)
		if err != nil {
			return errors.Wrap(err, "building parent dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	default:
		return errHttpForbidden
	}
}
