package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
	emailsvc "github.com/darasahq/darasa/services/email"
	logsvc "github.com/darasahq/darasa/services/logger"
	"github.com/darasahq/darasa/storage/database"
	sqlxrepos "github.com/darasahq/darasa/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	if err := core.Conf.Validate(); err != nil {
		std.Fatalf("config: %v", err)
	}

	var logger core.Logger
	if core.Conf.Debug {
		logger = core.StdLogger{Std: std}
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()
	if err := database.Migrate(db.DB, core.Conf); err != nil {
		logger.Fatal("migrating database", err)
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), sqlxrepos.NewTokenRepository(db), mailSvc)
	acadSvc := academic.NewService(sqlxrepos.NewAcademicRepository(db))
	actSvc := activity.NewService(sqlxrepos.NewActivityRepository(db))
	dashSvc := dashboard.NewService(
		sqlxrepos.NewDashboardRepository(db), usrSvc, core.NewCache(core.Conf.DashboardCacheTimeout))

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:      core.Conf.Server.Address(),
			UserSvc:      usrSvc,
			AcademicSvc:  acadSvc,
			ActivitySvc:  actSvc,
			DashboardSvc: dashSvc,
			MailSvc:      mailSvc,
			Logger:       logger,
		},
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Error("stopping server", err)
		}
	}()

	logger.Info("starting API server on " + core.Conf.Server.Address())
	app.Start()
}
