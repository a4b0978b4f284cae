package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/user"
)

type academicApi struct {
	svc    *academic.Service
	usrSvc *user.Service
}

func registerAcademicAPI(g *echo.Group, jwt, auth, pwdGuard echo.MiddlewareFunc, svc *academic.Service, usrSvc *user.Service) {
	api := academicApi{svc: svc, usrSvc: usrSvc}

	ag := g.Group("/academics", jwt, auth, pwdGuard)

	// student endpoints
	sg := ag.Group("", studentMiddleware())
	sg.GET("/subjects", api.availableSubjects)
	sg.POST("/subjects/register", api.registerSubjects)
	sg.GET("/courses", api.courses)
	sg.GET("/subjects-progress", api.subjectsProgress)
	sg.GET("/roadmap", api.roadmap)
	sg.GET("/roadmap/:classID", api.roadmapDetail)
	sg.GET("/live-sessions", api.liveSessions)
	sg.GET("/live-sessions/:id", api.liveSessionDetail)
	sg.POST("/live-sessions/:id/join", api.joinLiveSession)
	sg.POST("/live-sessions/:id/leave", api.leaveLiveSession)
	sg.POST("/live-sessions/:id/reminder", api.scheduleReminder)
	sg.GET("/live-sessions/:id/messages", api.sessionMessages)
	sg.POST("/live-sessions/:id/messages", api.sendSessionMessage)
	sg.GET("/classes/:classID/materials", api.materials)
	sg.GET("/materials/:id", api.materialDetail)

	// teacher endpoints
	tg := ag.Group("", teacherMiddleware())
	tg.POST("/modules", api.createModule)
	tg.POST("/live-sessions/schedule", api.scheduleLiveSession)
}

// Handlers

func (api *academicApi) availableSubjects(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	subjects, err := api.svc.AvailableSubjects(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying available subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) registerSubjects(ctx echo.Context) error {
	var data academic.RegisterSubjects
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterSubjects")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.RegisterSubjects(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "registering subjects")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *academicApi) courses(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	courses, err := api.svc.Courses(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *academicApi) subjectsProgress(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	progress, err := api.svc.SubjectsProgress(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying subjects progress")
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *academicApi) roadmap(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	items, err := api.svc.Roadmap(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying roadmap")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *academicApi) roadmapDetail(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	detail, err := api.svc.RoadmapDetail(ctx.Request().Context(), st, ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "querying roadmap detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *academicApi) liveSessions(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sessions, err := api.svc.LiveSessions(ctx.Request().Context(), st)
	if err != nil {
		return errors.Wrap(err, "querying live sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *academicApi) liveSessionDetail(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	detail, err := api.svc.LiveSessionDetail(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying live session detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *academicApi) joinLiveSession(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	meetingURL, err := api.svc.JoinLiveSession(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "joining live session")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"meeting_url": meetingURL})
}

func (api *academicApi) leaveLiveSession(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sessionID, err := api.svc.LeaveLiveSession(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "leaving live session")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"session_id": sessionID})
}

func (api *academicApi) scheduleReminder(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	reminder, err := api.svc.ScheduleSessionReminder(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "scheduling session reminder")
	}
	return ctx.JSON(http.StatusCreated, reminder)
}

func (api *academicApi) sessionMessages(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	messages, err := api.svc.SessionMessages(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying session messages")
	}
	return ctx.JSON(http.StatusOK, messages)
}

func (api *academicApi) sendSessionMessage(ctx echo.Context) error {
	var data academic.NewSessionMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSessionMessage")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	msg, err := api.svc.SendSessionMessage(ctx.Request().Context(), st, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending session message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *academicApi) materials(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	materials, err := api.svc.Materials(ctx.Request().Context(), st, ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *academicApi) materialDetail(ctx echo.Context) error {
	st, err := getContextStudent(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	material, err := api.svc.MaterialDetail(ctx.Request().Context(), st, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying material detail")
	}
	return ctx.JSON(http.StatusOK, material)
}

func (api *academicApi) createModule(ctx echo.Context) error {
	var data academic.NewSubjectModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubjectModule")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	module, err := api.svc.CreateSubjectModule(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "creating subject module")
	}
	return ctx.JSON(http.StatusCreated, module)
}

func (api *academicApi) scheduleLiveSession(ctx echo.Context) error {
	var data academic.NewLiveSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLiveSession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacher, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	session, err := api.svc.ScheduleLiveSession(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "scheduling live session")
	}
	return ctx.JSON(http.StatusCreated, session)
}
