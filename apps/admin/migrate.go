package main

import (
	"database/sql"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate() error {
	var db *sql.DB
	if cli.db != nil {
		db = cli.db.DB
	}
	return migrateFunc(db, core.Conf)
}
