package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/user"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

type activityApi struct {
	svc     *activity.Service
	acadSvc *academic.Service
	usrSvc  *user.Service
}

func registerActivityAPI(
	g *echo.Group,
	jwt, auth, pwdGuard echo.MiddlewareFunc,
	svc *activity.Service,
	acadSvc *academic.Service,
	usrSvc *user.Service,
) {
	api := activityApi{svc: svc, acadSvc: acadSvc, usrSvc: usrSvc}

	ag := g.Group("", jwt, auth, pwdGuard)

	// student endpoints
	for _, prefix := range []string{"/class-activities", "/examinations"} {
		sg := ag.Group(prefix, studentMiddleware())
		sg.GET("", api.list)
		sg.GET("/:id", api.detail)
		sg.POST("/:id/start", api.start)
		sg.GET("/:id/questions", api.questions)
		sg.POST("/:id/submit", api.submit)
	}

	asg := ag.Group("/assignments", studentMiddleware())
	asg.GET("", api.listAssignments)
	asg.GET("/:id", api.assignmentDetail)
	asg.POST("/:id/start", api.startAssignment)
	asg.POST("/:id/draft", api.saveDraft)
	asg.POST("/:id/submit", api.submitAssignment)
	asg.GET("/:id/preview", api.previewSubmission)
	asg.GET("/:id/submission", api.viewSubmission)

	// teacher endpoints
	tg := ag.Group("", teacherMiddleware())
	tg.POST("/class-activities", api.create)
	tg.POST("/assignments", api.createAssignment)
	tg.POST("/assignments/:id/grade/:studentID", api.gradeAssignment)
}

// Handlers

func (api *activityApi) list(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	classIDs, err := api.acadSvc.RegisteredClassIDs(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying registered class IDs")
	}
	items, err := api.svc.List(ctx.Request().Context(), st, classIDs, ctx.QueryParam("filter"))
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *activityApi) detail(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	detail, err := api.svc.Detail(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying activity detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *activityApi) start(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	attempt, err := api.svc.Start(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting activity")
	}
	return ctx.JSON(http.StatusOK, attempt)
}

func (api *activityApi) questions(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	page := intQueryParam(ctx, "page", 1)
	pageSize := intQueryParam(ctx, "page_size", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	qPage, err := api.svc.Questions(ctx.Request().Context(), st, ctx.Param("id"), page, pageSize)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	return ctx.JSON(http.StatusOK, qPage)
}

func (api *activityApi) submit(ctx echo.Context) error {
	var data activity.SubmitActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitActivity")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.Submit(ctx.Request().Context(), st, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting activity")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *activityApi) create(ctx echo.Context) error {
	var data activity.NewClassActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassActivity")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	act, err := api.svc.Create(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *activityApi) listAssignments(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	items, err := api.svc.ListAssignments(ctx.Request().Context(), st, ctx.QueryParam("filter"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *activityApi) assignmentDetail(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	detail, err := api.svc.AssignmentDetail(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assignment detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *activityApi) startAssignment(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err := api.svc.StartAssignment(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting assignment")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *activityApi) saveDraft(ctx echo.Context) error {
	var data activity.DraftSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err := api.svc.SaveDraft(ctx.Request().Context(), st, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving draft")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *activityApi) submitAssignment(ctx echo.Context) error {
	var data activity.DraftSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err := api.svc.SubmitAssignment(ctx.Request().Context(), st, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *activityApi) previewSubmission(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err := api.svc.PreviewSubmission(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "previewing submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *activityApi) viewSubmission(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sub, err := api.svc.ViewSubmission(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "viewing submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *activityApi) createAssignment(ctx echo.Context) error {
	var data activity.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	assignment, err := api.svc.CreateAssignment(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, assignment)
}

func (api *activityApi) gradeAssignment(ctx echo.Context) error {
	var data activity.GradeSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.GradeAssignment(ctx.Request().Context(), teacher, ctx.Param("studentID"), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading assignment")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func intQueryParam(ctx echo.Context, name string, dflt int) int {
	if v := ctx.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return dflt
}
