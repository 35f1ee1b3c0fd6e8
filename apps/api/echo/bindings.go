package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/page"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// PageFilter converts the first requested ordering into page query options.
func (ord *Ordering) PageFilter() (field string, descending bool) {
	if len(ord.Orderings) == 0 {
		return "", false
	}
	return ord.Orderings[0].Field, !ord.Orderings[0].Ascending
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	// BatchUpdateRequest selects modules and the lifecycle event to apply to them.
	BatchUpdateRequest struct {
		Event     string   `json:"event" validate:"required,batchevent"`
		ModuleIDs []string `json:"module_ids"`
	}

	BatchUpdateResponse struct {
		Completed []int `json:"completed"`
	}

	// ModuleResponse is a Module decorated with the viewer's progression state.
	ModuleResponse struct {
		course.Module
		Progress *course.Progress `json:"progress,omitempty"`
	}

	// ItemResponse is an Item decorated with the viewer's access flag.
	ItemResponse struct {
		course.Item
		Accessible *bool `json:"accessible,omitempty"`
	}

	PageListResponse struct {
		Pages []page.Page `json:"pages"`
	}
)

func (r *LoginRequest) Validate() error {
	r.Username = core.CleanString(r.Username, true /* lower */)
	return core.Validate.Struct(r)
}
