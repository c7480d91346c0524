package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/services/xlsx"
)

var (
	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	logger    core.Logger
	validate  *validator.Validate
	importer  *xlsx.Importer
	timetable *timetable.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, redo, version...)")
	fmt.Println("  importtimetable -file PATH -school ID [-week YYYY-MM-DD] [-by USER] - import class timetables from a workbook")
	fmt.Println("  promote -class ID -week YYYY-MM-DD [-by USER] [-preview] - make a weekly override the class's timetable")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	importCmd := flag.NewFlagSet("importtimetable", flag.ExitOnError)
	importFile := importCmd.String("file", "", "Path of the .xlsx workbook; one sheet per class.")
	importSchool := importCmd.String("school", "", "ID of the school the classes belong to.")
	importWeek := importCmd.String("week", "", "First week the imported timetables apply to (defaults to the current week).")
	importBy := importCmd.String("by", "admin", "User recorded as the author.")

	promoteCmd := flag.NewFlagSet("promote", flag.ExitOnError)
	promoteClass := promoteCmd.String("class", "", "ID of the class.")
	promoteWeek := promoteCmd.String("week", "", "Any date of the week to promote.")
	promoteBy := promoteCmd.String("by", "admin", "User recorded as the author.")
	promotePreview := promoteCmd.Bool("preview", false, "Only print the changes promoting would make.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "importtimetable":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" || *importSchool == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importTimetable(ctx, *importFile, *importSchool, *importWeek, *importBy)
	case "promote":
		if err := promoteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *promoteClass == "" || *promoteWeek == "" {
			promoteCmd.Usage()
			return errHelp
		}
		return cli.promote(ctx, *promoteClass, *promoteWeek, *promoteBy, *promotePreview)
	default:
		cli.printUsage()
		return errHelp
	}
}
