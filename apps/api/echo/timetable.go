package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/timetable"
)

type timetableApi struct {
	svc      *timetable.Service
	validate *validator.Validate
}

func registerTimetableAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *timetable.Service, validate *validator.Validate) {
	api := timetableApi{svc: svc, validate: validate}

	g.POST("/versions/:id/activate", api.activateVersion, jwt, adminMiddleware())
	g.GET("/teachers/:teacherID/availability", api.availability, jwt)

	cg := g.Group("/classes/:classID", jwt)
	cg.GET("/schedule", api.globalSchedule)
	cg.PUT("/schedule", api.replaceSchedule, adminMiddleware())
	cg.GET("/versions", api.versions)
	cg.GET("/candidates", api.candidates)

	// weekly overrides
	wg := cg.Group("/weeks/:weekStart")
	wg.GET("/schedule", api.weeklySchedule)
	wg.POST("/override", api.ensureOverride, adminMiddleware())
	wg.PUT("/slots/:day/:period", api.editSlot, adminMiddleware())
	wg.POST("/promote", api.promote, adminMiddleware())
	wg.GET("/promote/preview", api.previewPromotion, adminMiddleware())
}

// Handlers

func (api *timetableApi) globalSchedule(ctx echo.Context) error {
	slots, err := api.svc.GlobalSchedule(ctx.Request().Context(), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "getting global schedule")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (api *timetableApi) replaceSchedule(ctx echo.Context) error {
	var data timetable.ReplaceSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReplaceSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.ClassID = ctx.Param("classID")
	data.By = claims.Subject

	v, err := api.svc.ReplaceGlobalSchedule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "replacing global schedule")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *timetableApi) versions(ctx echo.Context) error {
	versions, err := api.svc.Versions(ctx.Request().Context(), ctx.Param("classID"))
	if err != nil {
		return errors.Wrap(err, "querying versions")
	}
	return ctx.JSON(http.StatusOK, versions)
}

func (api *timetableApi) activateVersion(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	v, err := api.svc.ActivateVersion(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "activating version")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *timetableApi) candidates(ctx echo.Context) error {
	var data CandidatesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CandidatesRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	candidates, err := api.svc.FindCandidates(ctx.Request().Context(), timetable.CandidateQuery{
		ClassID:          ctx.Param("classID"),
		SubjectID:        data.SubjectID,
		ExcludeTeacherID: data.ExcludeTeacherID,
		Day:              timetable.Day(data.Day),
		Period:           data.Period,
		WeekStart:        *optionalDate(data.WeekStart),
	})
	if err != nil {
		return errors.Wrap(err, "finding candidates")
	}
	return ctx.JSON(http.StatusOK, candidates)
}

func (api *timetableApi) availability(ctx echo.Context) error {
	var data AvailabilityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AvailabilityRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacherID := ctx.Param("teacherID")
	day := timetable.Day(data.Day)
	ok, err := api.svc.IsAvailable(ctx.Request().Context(), teacherID, day, data.Period, *optionalDate(data.Date))
	if err != nil {
		return errors.Wrap(err, "checking availability")
	}
	return ctx.JSON(http.StatusOK, AvailabilityResponse{
		TeacherID: teacherID,
		Day:       day,
		Period:    data.Period,
		Date:      data.Date,
		Available: ok,
	})
}

func (api *timetableApi) weeklySchedule(ctx echo.Context) error {
	weekStart, err := weekStartParam(ctx)
	if err != nil {
		return err
	}
	ws, err := api.svc.EffectiveSchedule(ctx.Request().Context(), ctx.Param("classID"), weekStart)
	if err != nil {
		return errors.Wrap(err, "getting effective schedule")
	}
	return ctx.JSON(http.StatusOK, ws)
}

func (api *timetableApi) ensureOverride(ctx echo.Context) error {
	weekStart, err := weekStartParam(ctx)
	if err != nil {
		return err
	}
	ov, err := api.svc.EnsureWeeklyOverride(ctx.Request().Context(), ctx.Param("classID"), weekStart)
	if err != nil {
		return errors.Wrap(err, "ensuring weekly override")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *timetableApi) editSlot(ctx echo.Context) error {
	weekStart, err := weekStartParam(ctx)
	if err != nil {
		return err
	}
	day, err := dayParam(ctx)
	if err != nil {
		return err
	}
	period, err := periodParam(ctx)
	if err != nil {
		return err
	}

	var data timetable.SlotEdit
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SlotEdit")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ov, err := api.svc.EditSlot(ctx.Request().Context(), timetable.EditSlotRequest{
		ClassID:   ctx.Param("classID"),
		WeekStart: weekStart,
		Day:       day,
		Period:    period,
		Edit:      data,
		By:        claims.Subject,
	})
	if err != nil {
		return errors.Wrap(err, "editing slot")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *timetableApi) promote(ctx echo.Context) error {
	weekStart, err := weekStartParam(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	v, err := api.svc.Promote(ctx.Request().Context(), ctx.Param("classID"), weekStart, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "promoting weekly override")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *timetableApi) previewPromotion(ctx echo.Context) error {
	weekStart, err := weekStartParam(ctx)
	if err != nil {
		return err
	}
	diff, err := api.svc.PreviewPromotion(ctx.Request().Context(), ctx.Param("classID"), weekStart)
	if err != nil {
		return errors.Wrap(err, "previewing promotion")
	}
	return ctx.JSON(http.StatusOK, PreviewResponse{Diff: diff})
}
