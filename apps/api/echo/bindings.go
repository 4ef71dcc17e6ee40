package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses "?ordering=-due_date,total_fee"; fields outside allowed are rejected.
func (ord *Ordering) Bind(ctx echo.Context, allowed []string) error {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !core.ContainsString(allowed, field) {
			return core.NewFieldError(orderingParam, "cannot order by "+field)
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}
