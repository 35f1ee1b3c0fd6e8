package main

import (
	"github.com/trezcool/darasa/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db.DB, args[0], args[1:]...)
}
