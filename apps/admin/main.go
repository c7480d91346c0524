package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/timetable"
	logsvc "github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/services/xlsx"
	"github.com/trezcool/ratiba/storage/database"
	boiledrepos "github.com/trezcool/ratiba/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	errAndDie(logger, database.Ping(db))

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	dir := sqlxrepos.NewDirectory(db)
	attSvc := attendance.NewService(sqlxrepos.NewAttendanceRepository(db), dir)

	// start CLI
	cli := commandLine{
		db:       db,
		logger:   logger,
		validate: validate,
		importer: xlsx.NewImporter(dir, logger),
		timetable: timetable.NewService(timetable.Deps{
			Conf:       conf,
			Logger:     logger,
			Tx:         database.NewTransactor(db),
			Repo:       boiledrepos.NewTimetableRepository(db),
			Directory:  dir,
			Attendance: attSvc,
			Audit:      sqlxrepos.NewAuditSink(db),
		}),
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
