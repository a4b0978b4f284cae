package main

import (
	"log"
	"os"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
	emailsvc "github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/storage/database"
	sqlxrepos "github.com/darasahq/darasa/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(core.Conf.Validate())
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		usrSvc:  user.NewService(usrRepo, sqlxrepos.NewTokenRepository(db), emailsvc.NewConsoleService()),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
