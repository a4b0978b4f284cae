package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		UserSvc      *user.Service
		AcademicSvc  *academic.Service
		ActivitySvc  *activity.Service
		DashboardSvc *dashboard.Service
		MailSvc      core.EmailService
		Logger       core.Logger
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan struct{}, 1),
	}
	s.setup()
	return s
}

// Shutdown returns a channel signalled when a fatal error requires the
// server to stop.
func (s *server) signalShutdown() {
	select {
	case s.shutdown <- struct{}{}:
	default:
	}
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)
	auth := authMiddleware(s.opts.UserSvc)
	pwdGuard := passwordChangeGuard()

	registerUserAPI(v1, jwt, auth, pwdGuard, s.opts.UserSvc)
	registerAcademicAPI(v1, jwt, auth, pwdGuard, s.opts.AcademicSvc, s.opts.UserSvc)
	registerActivityAPI(v1, jwt, auth, pwdGuard, s.opts.ActivitySvc, s.opts.AcademicSvc, s.opts.UserSvc)
	registerDashboardAPI(v1, jwt, auth, pwdGuard, s.opts.DashboardSvc, s.opts.UserSvc)
	registerContactAPI(v1, s.opts.MailSvc)
}

func (s *server) Start() {
	go func() {
		<-s.shutdown
		_ = s.Stop(context.Background())
	}()
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Darasa API!")
}
