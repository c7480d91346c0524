package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/timetable"
)

type substitutionApi struct {
	svc      *timetable.Service
	validate *validator.Validate
}

func registerSubstitutionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *timetable.Service, validate *validator.Validate) {
	api := substitutionApi{svc: svc, validate: validate}

	g.GET("/schedule-changes", api.changes, jwt)

	sg := g.Group("/substitutions", jwt)
	sg.GET("", api.query)
	sg.POST("", api.submit, adminMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/approve", api.approve, adminMiddleware())
	sg.POST("/:id/reject", api.reject, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

// Handlers

func (api *substitutionApi) query(ctx echo.Context) error {
	var data SubstitutionsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubstitutionsRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	subs, err := api.svc.ListSubstitutions(ctx.Request().Context(), timetable.SubstitutionQuery{
		SchoolID: claims.SchoolID,
		Date:     optionalDate(data.Date),
		Status:   timetable.SubstitutionStatus(data.Status),
	})
	if err != nil {
		return errors.Wrap(err, "listing substitutions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *substitutionApi) retrieve(ctx echo.Context) error {
	sub, err := api.svc.GetSubstitution(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting substitution")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *substitutionApi) submit(ctx echo.Context) error {
	var data timetable.NewSubstitution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubstitution")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.By = claims.Subject

	sub, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting substitution")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *substitutionApi) approve(ctx echo.Context) error {
	var data timetable.ApproveSubstitution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApproveSubstitution")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.By = claims.Subject

	sub, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "approving substitution")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *substitutionApi) reject(ctx echo.Context) error {
	var data timetable.RejectSubstitution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectSubstitution")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.By = claims.Subject

	sub, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting substitution")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *substitutionApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err = api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return errors.Wrap(err, "deleting substitution")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *substitutionApi) changes(ctx echo.Context) error {
	var data ChangesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangesRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	changes, err := api.svc.ListChanges(ctx.Request().Context(), claims.SchoolID, optionalDate(data.Date))
	if err != nil {
		return errors.Wrap(err, "listing schedule changes")
	}
	return ctx.JSON(http.StatusOK, changes)
}
