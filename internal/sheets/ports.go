package sheets

import "context"

// Row is one exported week entry. Column order matches the spreadsheet:
// assignment id first so rows can be found again for deletion.
type Row struct {
	AssignmentID int64
	Resource     string
	Project      string
	Subprocess   string
	WeekMonday   string
	Label        string
	Percentage   float64
}

// Values returns the row in spreadsheet column order.
func (r Row) Values() []any {
	return []any{r.AssignmentID, r.Resource, r.Project, r.Subprocess, r.WeekMonday, r.Label, r.Percentage}
}

// Ports for outbound adapters.
type (
	RowAppender interface {
		AppendRows(ctx context.Context, rows []Row) error
	}

	// RowDeleter removes every row belonging to one assignment.
	RowDeleter interface {
		DeleteRows(ctx context.Context, assignmentID int64) error
	}
)
