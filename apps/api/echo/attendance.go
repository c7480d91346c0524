package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/timetable"
)

type (
	attendanceApi struct {
		svc      *attendance.Service
		detector *timetable.Service
		logger   core.Logger
		validate *validator.Validate
	}

	MarkAttendanceResponse struct {
		Record     attendance.Record     `json:"record"`
		Transition attendance.Transition `json:"transition"`
		Report     *timetable.Report     `json:"report"`
	}
)

func registerAttendanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *attendance.Service,
	detector *timetable.Service,
	logger core.Logger,
	validate *validator.Validate,
) {
	api := attendanceApi{svc: svc, detector: detector, logger: logger, validate: validate}

	g.POST("/attendance", api.mark, jwt, adminMiddleware())
}

// mark records the attendance, then repairs or reverts the teacher's week.
// The attendance is kept even when the repair fails; the failure is only logged.
func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.Mark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Mark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.MarkedBy = claims.Subject

	rec, tr, err := api.svc.Mark(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}

	resp := MarkAttendanceResponse{Record: rec, Transition: tr}
	report, err := api.detector.HandleTransition(ctx.Request().Context(), tr)
	if err != nil {
		api.logger.Error("handling attendance transition", errors.Wrap(err, "handling attendance transition"), claims.Person())
	} else {
		resp.Report = &report
	}
	return ctx.JSON(http.StatusOK, resp)
}
