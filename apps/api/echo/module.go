package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

type moduleApi struct {
	svc    *course.Service
	engine *course.ProgressEngine
}

func registerModuleAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *course.Service, engine *course.ProgressEngine) {
	api := moduleApi{svc: svc, engine: engine}

	mg := g.Group("/courses/:course_id/modules", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create, contentManagerMiddleware())
	mg.PUT("", api.batchUpdate, contentManagerMiddleware())

	dg := mg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, contentManagerMiddleware())
	dg.DELETE("", api.destroy, contentManagerMiddleware())
	dg.GET("/items", api.queryItems)
	dg.POST("/items", api.createItem, contentManagerMiddleware())

	// learner interactions recorded by the content subsystems
	ig := g.Group("/courses/:course_id/content/:content_type/:content_id", jwt)
	ig.POST("/actions", api.recordAction)
	ig.POST("/score", api.recordScore)
}

// Handlers

func (api *moduleApi) query(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	mods, err := api.svc.Query(ctx.Request().Context(), courseID, manager)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}

	res := make([]ModuleResponse, 0, len(mods))
	if manager {
		for _, mod := range mods {
			res = append(res, ModuleResponse{Module: mod})
		}
		return ctx.JSON(http.StatusOK, res)
	}

	progress, err := api.engine.CourseProgress(ctx.Request().Context(), courseID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "computing course progress")
	}
	for _, mod := range mods {
		prog := progress[mod.ID]
		res = append(res, ModuleResponse{Module: mod, Progress: &prog})
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *moduleApi) retrieve(ctx echo.Context) error {
	courseID, id, err := pathCourseAndID(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	mod, err := api.svc.Get(ctx.Request().Context(), courseID, id, manager)
	if err != nil {
		return errors.Wrap(err, "getting module")
	}

	res := ModuleResponse{Module: mod}
	if !manager {
		prog, err := api.engine.ModuleProgress(ctx.Request().Context(), courseID, claims.Subject, mod.ID)
		if err != nil {
			return errors.Wrap(err, "computing module progress")
		}
		res.Progress = &prog
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *moduleApi) create(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	var data course.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	mod, err := api.svc.Create(ctx.Request().Context(), courseID, data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *moduleApi) update(ctx echo.Context) error {
	courseID, id, err := pathCourseAndID(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	mod, err := api.svc.Update(ctx.Request().Context(), courseID, id, data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *moduleApi) destroy(ctx echo.Context) error {
	courseID, id, err := pathCourseAndID(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), courseID, id); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *moduleApi) batchUpdate(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	var data BatchUpdateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchUpdateRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}
	completed, err := api.svc.BatchUpdate(ctx.Request().Context(), courseID, data.Event, data.ModuleIDs)
	if err != nil {
		return errors.Wrap(err, "batch updating modules")
	}
	return ctx.JSON(http.StatusOK, BatchUpdateResponse{Completed: completed})
}

func (api *moduleApi) queryItems(ctx echo.Context) error {
	courseID, id, err := pathCourseAndID(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	mod, err := api.svc.Get(ctx.Request().Context(), courseID, id, manager)
	if err != nil {
		return errors.Wrap(err, "getting module")
	}
	items, err := api.svc.Items(ctx.Request().Context(), mod.ID)
	if err != nil {
		return errors.Wrap(err, "querying items")
	}

	res := make([]ItemResponse, 0, len(items))
	if manager {
		for _, it := range items {
			res = append(res, ItemResponse{Item: it})
		}
		return ctx.JSON(http.StatusOK, res)
	}

	access, err := api.engine.AccessibleItems(ctx.Request().Context(), claims.Subject, mod)
	if err != nil {
		return errors.Wrap(err, "computing item access")
	}
	for _, it := range items {
		accessible := access[it.ID]
		res = append(res, ItemResponse{Item: it, Accessible: &accessible})
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *moduleApi) createItem(ctx echo.Context) error {
	courseID, id, err := pathCourseAndID(ctx)
	if err != nil {
		return err
	}
	var data course.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	item, err := api.svc.AddItem(ctx.Request().Context(), courseID, id, data)
	if err != nil {
		return errors.Wrap(err, "adding item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *moduleApi) recordAction(ctx echo.Context) error {
	courseID, contentType, contentID, err := pathContentRef(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data struct {
		Action string `json:"action" validate:"required,oneof=viewed submitted contributed"`
	}
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding action")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	err = api.svc.ContentAction(ctx.Request().Context(), courseID, claims.Subject, data.Action, contentType, contentID)
	if err != nil {
		return errors.Wrap(err, "recording content action")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *moduleApi) recordScore(ctx echo.Context) error {
	courseID, contentType, contentID, err := pathContentRef(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data struct {
		Score float64 `json:"score" validate:"gte=0"`
	}
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding score")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	err = api.svc.RecordScore(ctx.Request().Context(), courseID, claims.Subject, contentType, contentID, data.Score)
	if err != nil {
		return errors.Wrap(err, "recording score")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// path helpers

func pathID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

func pathCourseAndID(ctx echo.Context) (courseID, id int, err error) {
	if courseID, err = pathID(ctx, "course_id"); err != nil {
		return
	}
	id, err = pathID(ctx, "id")
	return
}

func pathContentRef(ctx echo.Context) (courseID int, contentType string, contentID int, err error) {
	if courseID, err = pathID(ctx, "course_id"); err != nil {
		return
	}
	contentType = ctx.Param("content_type")
	contentID, err = pathID(ctx, "content_id")
	return
}
