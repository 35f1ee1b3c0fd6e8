package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/page"
)

type pageApi struct {
	svc       *page.Service
	courseSvc *course.Service
}

func registerPageAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *page.Service, courseSvc *course.Service) {
	api := pageApi{svc: svc, courseSvc: courseSvc}

	pg := g.Group("/courses/:course_id/pages", jwt)
	pg.GET("", api.query)
	pg.POST("", api.create, contentManagerMiddleware())

	dg := pg.Group("/:url")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, contentManagerMiddleware())

	g.GET("/courses/:course_id/front_page", api.frontPage, jwt)
}

// Handlers

func (api *pageApi) query(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	var ord Ordering
	ord.Bind(ctx)
	sortField, descending := ord.PageFilter()

	pages, err := api.svc.Query(ctx.Request().Context(), courseID, page.QueryFilter{
		IncludeUnpublished: manager,
		IncludeHidden:      manager,
		SortField:          sortField,
		Descending:         descending,
	})
	if err != nil {
		return errors.Wrap(err, "querying pages")
	}
	return ctx.JSON(http.StatusOK, PageListResponse{Pages: pages})
}

func (api *pageApi) retrieve(ctx echo.Context) error {
	return api.show(ctx, ctx.Param("url"))
}

func (api *pageApi) frontPage(ctx echo.Context) error {
	return api.show(ctx, page.FrontPageSlug)
}

func (api *pageApi) show(ctx echo.Context, slug string) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	pg, err := api.svc.Get(ctx.Request().Context(), courseID, slug, page.QueryFilter{
		IncludeUnpublished: manager,
		IncludeHidden:      manager,
	})
	if err != nil {
		return errors.Wrap(err, "getting page")
	}

	if !manager {
		// a learner reading a page satisfies its must_view requirements
		err = api.courseSvc.ContentAction(
			ctx.Request().Context(), courseID, claims.Subject, course.ActionViewed, course.ContentPage, pg.ID)
		if err != nil {
			return errors.Wrap(err, "recording page view")
		}
	}
	return ctx.JSON(http.StatusOK, pg)
}

func (api *pageApi) create(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data page.NewPage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPage")
	}
	pg, err := api.svc.Create(ctx.Request().Context(), courseID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating page")
	}
	return ctx.JSON(http.StatusCreated, pg)
}

func (api *pageApi) update(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	slug := ctx.Param("url")
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	manager := claims.IsTeacher || claims.IsAdmin

	// non-managers may only edit content, and only when the page's editing
	// roles grant them access
	contentOnly := !manager
	if contentOnly {
		pg, err := api.svc.Get(ctx.Request().Context(), courseID, slug, page.QueryFilter{})
		if err != nil {
			return errors.Wrap(err, "getting page")
		}
		if !(pg.EditableBy(page.EditStudents) || pg.EditableBy(page.EditPublic)) {
			return errHttpForbidden
		}
	}

	var data page.UpdatePage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePage")
	}
	pg, err := api.svc.Update(ctx.Request().Context(), courseID, slug, claims.Subject, data, contentOnly)
	if err != nil {
		return errors.Wrap(err, "updating page")
	}

	if contentOnly {
		// a learner contributing to a page satisfies its must_contribute requirements
		err = api.courseSvc.ContentAction(
			ctx.Request().Context(), courseID, claims.Subject, course.ActionContributed, course.ContentPage, pg.ID)
		if err != nil {
			return errors.Wrap(err, "recording page contribution")
		}
	}
	return ctx.JSON(http.StatusOK, pg)
}

func (api *pageApi) destroy(ctx echo.Context) error {
	courseID, err := pathID(ctx, "course_id")
	if err != nil {
		return err
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), courseID, ctx.Param("url")); err != nil {
		return errors.Wrap(err, "deleting page")
	}
	return ctx.NoContent(http.StatusNoContent)
}
