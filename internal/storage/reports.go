package storage

import (
	"context"
	"fmt"
	"time"

	"carga/internal/core"
)

// Row shapes returned by the aggregation queries. The report service
// densifies them against the full window label set.
type (
	CapacityRow struct {
		ResourceName string
		WeekMonday   time.Time
		Percentage   float64
	}

	TypeLoadRow struct {
		ResourceName   string
		Classification core.Classification
		ProjectID      int64
		ProjectName    string
		WeekMonday     time.Time
		Percentage     float64
		Entries        int
	}

	ProjectWeekRow struct {
		ProjectName string
		WeekMonday  time.Time
		Percentage  float64
	}

	ProjectSummaryRow struct {
		ID            int64
		Name          string
		ResourceCount int
		FirstMonday   *time.Time
		LastFriday    *time.Time
	}

	ResourceSummaryRow struct {
		ResourceID     int64
		ResourceName   string
		WeekCount      int
		Classification core.Classification
		TotalPct       float64
	}

	SubprocessCountRow struct {
		Subprocess string
		Count      int
	}
)

// CapacityRows sums committed percentage per resource/week inside the window.
func (r *Repository) CapacityRows(ctx context.Context, from, to time.Time) ([]CapacityRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT res.name, aw.week_monday, SUM(aw.percentage)
		 FROM assignment_weeks aw
		 JOIN resources res ON res.id = aw.resource_id
		 WHERE aw.week_monday BETWEEN ? AND ?
		 GROUP BY res.name, aw.week_monday`,
		from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("capacity rows: %w", err)
	}
	defer rows.Close()

	var out []CapacityRow
	for rows.Next() {
		var row CapacityRow
		var monday string
		if err := rows.Scan(&row.ResourceName, &monday, &row.Percentage); err != nil {
			return nil, fmt.Errorf("scan capacity row: %w", err)
		}
		row.WeekMonday = parseDate(monday)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capacity rows: %w", err)
	}
	return out, nil
}

// TypeLoadRows sums percentage per person, classification, project and week.
// The classification comes from the assignment snapshot, not a live project
// join, so edited projects never rewrite past reports. resourceName narrows
// the result to one person when non-empty.
func (r *Repository) TypeLoadRows(ctx context.Context, from, to time.Time, resourceName string) ([]TypeLoadRow, error) {
	query := `SELECT res.name, a.classification, p.id, p.name, aw.week_monday,
	                 SUM(aw.percentage), COUNT(aw.id)
	          FROM assignment_weeks aw
	          JOIN assignments a ON a.id = aw.assignment_id
	          JOIN projects p ON p.id = aw.project_id
	          JOIN resources res ON res.id = aw.resource_id
	          WHERE aw.week_monday BETWEEN ? AND ?`
	args := []any{from.Format(dateLayout), to.Format(dateLayout)}
	if resourceName != "" {
		query += ` AND res.name = ?`
		args = append(args, resourceName)
	}
	query += ` GROUP BY res.name, a.classification, p.id, p.name, aw.week_monday`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("type load rows: %w", err)
	}
	defer rows.Close()

	var out []TypeLoadRow
	for rows.Next() {
		var row TypeLoadRow
		var classification, monday string
		if err := rows.Scan(&row.ResourceName, &classification, &row.ProjectID, &row.ProjectName,
			&monday, &row.Percentage, &row.Entries); err != nil {
			return nil, fmt.Errorf("scan type load row: %w", err)
		}
		row.Classification = core.Classification(classification)
		row.WeekMonday = parseDate(monday)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type load rows: %w", err)
	}
	return out, nil
}

// ProjectWeekRows sums percentage per project name and week inside the window.
func (r *Repository) ProjectWeekRows(ctx context.Context, from, to time.Time) ([]ProjectWeekRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.name, aw.week_monday, SUM(aw.percentage)
		 FROM assignment_weeks aw
		 JOIN projects p ON p.id = aw.project_id
		 WHERE aw.week_monday BETWEEN ? AND ?
		 GROUP BY p.name, aw.week_monday`,
		from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("project week rows: %w", err)
	}
	defer rows.Close()

	var out []ProjectWeekRow
	for rows.Next() {
		var row ProjectWeekRow
		var monday string
		if err := rows.Scan(&row.ProjectName, &monday, &row.Percentage); err != nil {
			return nil, fmt.Errorf("scan project week row: %w", err)
		}
		row.WeekMonday = parseDate(monday)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project week rows: %w", err)
	}
	return out, nil
}

// ProjectsSummary lists every project with its distinct resource count and
// the span of its allocated weeks.
func (r *Repository) ProjectsSummary(ctx context.Context) ([]ProjectSummaryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.name,
		        COUNT(DISTINCT aw.resource_id),
		        MIN(aw.week_monday), MAX(aw.week_friday)
		 FROM projects p
		 LEFT JOIN assignments a ON a.project_id = p.id
		 LEFT JOIN assignment_weeks aw ON aw.assignment_id = a.id
		 GROUP BY p.id, p.name
		 ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("projects summary: %w", err)
	}
	defer rows.Close()

	var out []ProjectSummaryRow
	for rows.Next() {
		var row ProjectSummaryRow
		var first, last *string
		if err := rows.Scan(&row.ID, &row.Name, &row.ResourceCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		if first != nil {
			d := parseDate(*first)
			row.FirstMonday = &d
		}
		if last != nil {
			d := parseDate(*last)
			row.LastFriday = &d
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects summary: %w", err)
	}
	return out, nil
}

// ResourcesSummary lists, per resource and classification, the number of
// committed weeks and the summed percentage.
func (r *Repository) ResourcesSummary(ctx context.Context) ([]ResourceSummaryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT res.id, res.name,
		        COUNT(aw.id),
		        COALESCE(a.classification, ''),
		        COALESCE(SUM(aw.percentage), 0)
		 FROM resources res
		 LEFT JOIN assignments a ON a.resource_id = res.id
		 LEFT JOIN assignment_weeks aw ON aw.assignment_id = a.id
		 GROUP BY res.id, res.name, a.classification
		 ORDER BY res.name`)
	if err != nil {
		return nil, fmt.Errorf("resources summary: %w", err)
	}
	defer rows.Close()

	var out []ResourceSummaryRow
	for rows.Next() {
		var row ResourceSummaryRow
		var classification string
		if err := rows.Scan(&row.ResourceID, &row.ResourceName, &row.WeekCount, &classification, &row.TotalPct); err != nil {
			return nil, fmt.Errorf("scan resource summary: %w", err)
		}
		row.Classification = core.Classification(classification)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources summary: %w", err)
	}
	return out, nil
}

// SubprocessCounts lists distinct subprocess labels for a project inside a
// date range, with occurrence counts. resourceName narrows to one person;
// excluded labels are filtered out entirely.
func (r *Repository) SubprocessCounts(ctx context.Context, projectID int64, from, to time.Time, resourceName string, exclude []string) ([]SubprocessCountRow, error) {
	query := `SELECT aw.subprocess, COUNT(aw.id)
	          FROM assignment_weeks aw
	          JOIN resources res ON res.id = aw.resource_id
	          WHERE aw.project_id = ? AND aw.week_monday >= ? AND aw.week_monday <= ?`
	args := []any{projectID, from.Format(dateLayout), to.Format(dateLayout)}
	if resourceName != "" {
		query += ` AND res.name = ?`
		args = append(args, resourceName)
	}
	for _, label := range exclude {
		query += ` AND aw.subprocess != ?`
		args = append(args, label)
	}
	query += ` GROUP BY aw.subprocess ORDER BY aw.subprocess`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("subprocess counts: %w", err)
	}
	defer rows.Close()

	var out []SubprocessCountRow
	for rows.Next() {
		var row SubprocessCountRow
		if err := rows.Scan(&row.Subprocess, &row.Count); err != nil {
			return nil, fmt.Errorf("scan subprocess count: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subprocess counts: %w", err)
	}
	return out, nil
}
