package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/frogedu/backend/core"
)

// trapNoRowsErr maps sql.ErrNoRows to the domain's not-found sentinel.
func trapNoRowsErr(err, notFoundErr error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}
	return err
}

func orderingClause(defaultClause string, ordering ...core.DBOrdering) string {
	if len(ordering) == 0 {
		return defaultClause
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
