package main

import (
	"log"
	"os"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/page"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	if err := core.Conf.Validate(); err != nil {
		std.Fatalf("config: %v", err)
	}

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	db, err := database.Open(core.Conf)
	if err != nil {
		std.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := database.Ping(db); err != nil {
		std.Fatalf("pinging database: %v", err)
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	moduleRepo := sqlxrepos.NewModuleRepository(db)
	factsRepo := sqlxrepos.NewFactsRepository(db)
	progressRepo := sqlxrepos.NewProgressRepository(db)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	courseSvc := course.NewService(moduleRepo, factsRepo)
	engine := course.NewProgressEngine(moduleRepo, progressRepo, factsRepo)
	pageSvc := page.NewService(sqlxrepos.NewPageRepository(db), mailSvc, usrSvc)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:   core.Conf.Server.Address(),
			Logger:    logger,
			UserSvc:   usrSvc,
			CourseSvc: courseSvc,
			Engine:    engine,
			PageSvc:   pageSvc,
		},
	)
	if err := app.Start(); err != nil {
		std.Fatalf("%+v", err)
	}
}
