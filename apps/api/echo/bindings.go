package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/rapor/core"
)

var (
	orderingParam = "ordering"
	semesterParam = "semester_id"
)

type Ordering struct {
	Orderings []core.Ordering
}

// Bind parses `?ordering=-published_at,student_name`, keeping only the allowed fields.
func (ord *Ordering) Bind(ctx echo.Context, allowed []string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		for _, f := range allowed {
			if f == field {
				ord.Orderings = append(ord.Orderings, core.Ordering{Field: field, Ascending: !descending})
				break
			}
		}
	}
}

// bindSemester reads the required `semester_id` query param.
func bindSemester(ctx echo.Context) (string, error) {
	semesterID := core.CleanString(ctx.QueryParam(semesterParam))
	if semesterID == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: semesterParam, Error: "this field is required"})
	}
	return semesterID, nil
}
