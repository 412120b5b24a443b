// Package storage is the persistence adapter: SQLite-backed CRUD for
// resources, projects and assignments, plus the capacity-checked
// transactional admission of week entries.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carga/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

// NewRepository opens (and migrates) the SQLite database at dbPath.
// Transactions are started with an immediate lock so that a capacity check
// and its inserts serialize against concurrent admissions.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- Resources ----

func (r *Repository) CreateResource(ctx context.Context, res *core.Resource) error {
	res.CreatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (name, unit, created_at) VALUES (?, ?, ?)`,
		res.Name, res.Unit, res.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	res.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("resource insert id: %w", err)
	}

	slog.InfoContext(ctx, "Resource created", "id", res.ID, "name", res.Name)
	return nil
}

func (r *Repository) GetResource(ctx context.Context, id int64) (*core.Resource, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, unit, created_at FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

func (r *Repository) ListResources(ctx context.Context) ([]core.Resource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, unit, created_at FROM resources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []core.Resource
	for rows.Next() {
		var res core.Resource
		var createdAt string
		if err := rows.Scan(&res.ID, &res.Name, &res.Unit, &createdAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		res.CreatedAt = parseTimestamp(createdAt)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

// ListResourceNames returns all resource names, ordered.
func (r *Repository) ListResourceNames(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, `SELECT name FROM resources ORDER BY name`)
}

// DeleteResource removes a resource and everything allocated to it.
// Week entries go first, then assignments, then the resource row itself.
func (r *Repository) DeleteResource(ctx context.Context, id int64) error {
	return r.cascadeDelete(ctx, "resources", "resource_id", id)
}

// ---- Projects ----

func (r *Repository) CreateProject(ctx context.Context, p *core.Project) error {
	p.CreatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (name, classification, phase, complexity, has_resource, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, string(p.Classification), p.Phase, string(p.Complexity),
		boolToInt(p.HasResource), p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("project insert id: %w", err)
	}

	slog.InfoContext(ctx, "Project created", "id", p.ID, "name", p.Name, "classification", p.Classification)
	return nil
}

func (r *Repository) GetProject(ctx context.Context, id int64) (*core.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, classification, phase, complexity, has_resource, created_at
		 FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (r *Repository) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, classification, phase, complexity, has_resource, created_at
		 FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		var p core.Project
		var classification, complexity, createdAt string
		var hasResource int
		if err := rows.Scan(&p.ID, &p.Name, &classification, &p.Phase, &complexity, &hasResource, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Classification = core.Classification(classification)
		p.Complexity = core.Complexity(complexity)
		p.HasResource = hasResource != 0
		p.CreatedAt = parseTimestamp(createdAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// ListProjectNames returns all project names, ordered.
func (r *Repository) ListProjectNames(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, `SELECT name FROM projects ORDER BY name`)
}

// DeleteProject removes a project and all assignments and week entries
// referencing it.
func (r *Repository) DeleteProject(ctx context.Context, id int64) error {
	return r.cascadeDelete(ctx, "projects", "project_id", id)
}

// ---- Assignments ----

// CreateAssignment admits one allocation atomically: the capacity totals are
// re-read and re-checked inside the write transaction, so a concurrent
// admission for the same resource can never interleave between check and
// insert. On a conflict nothing is written and the full conflict list comes
// back as *core.CapacityError.
func (r *Repository) CreateAssignment(ctx context.Context, a *core.Assignment, weeks []core.WeekEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment tx: %w", err)
	}
	defer tx.Rollback()

	var conflicts []core.WeekConflict
	for _, w := range weeks {
		total, err := sumPercentageTx(ctx, tx, a.ResourceID, w.WeekMonday)
		if err != nil {
			return err
		}
		if core.ExceedsCapacity(total, w.Percentage) {
			conflicts = append(conflicts, core.WeekConflict{
				WeekMonday: w.WeekMonday,
				Label:      w.MonthLabel + ":" + w.WeekLabel,
				Current:    total,
				Attempted:  w.Percentage,
			})
		}
	}
	if len(conflicts) > 0 {
		return &core.CapacityError{ResourceID: a.ResourceID, Weeks: conflicts}
	}

	if err := insertAssignmentTx(ctx, tx, a); err != nil {
		return err
	}
	for i := range weeks {
		weeks[i].AssignmentID = a.ID
		if err := insertWeekEntryTx(ctx, tx, &weeks[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment: %w", err)
	}

	slog.InfoContext(ctx, "Assignment created",
		"id", a.ID, "project_id", a.ProjectID, "resource_id", a.ResourceID, "weeks", len(weeks))
	return nil
}

// CreateAssignmentsBatch admits bulk-mode allocations: every item is a
// single-week assignment with its own percentage. Each week is checked
// independently against its own persisted total; one conflict aborts the
// whole batch before any row is written.
func (r *Repository) CreateAssignmentsBatch(ctx context.Context, items []core.AssignmentWithWeek) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	var conflicts []core.WeekConflict
	for _, it := range items {
		total, err := sumPercentageTx(ctx, tx, it.Assignment.ResourceID, it.Week.WeekMonday)
		if err != nil {
			return err
		}
		if core.ExceedsCapacity(total, it.Week.Percentage) {
			conflicts = append(conflicts, core.WeekConflict{
				WeekMonday: it.Week.WeekMonday,
				Label:      it.Week.MonthLabel + ":" + it.Week.WeekLabel,
				Current:    total,
				Attempted:  it.Week.Percentage,
			})
		}
	}
	if len(conflicts) > 0 {
		return &core.CapacityError{ResourceID: items[0].Assignment.ResourceID, Weeks: conflicts}
	}

	for i := range items {
		if err := insertAssignmentTx(ctx, tx, &items[i].Assignment); err != nil {
			return err
		}
		items[i].Week.AssignmentID = items[i].Assignment.ID
		if err := insertWeekEntryTx(ctx, tx, &items[i].Week); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Bulk assignments created",
		"count", len(items), "resource_id", items[0].Assignment.ResourceID)
	return nil
}

func (r *Repository) GetAssignment(ctx context.Context, id int64) (*core.Assignment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, resource_id, start_week_monday, end_week_monday,
		        subprocess, can_ordinal, classification, complexity, created_at
		 FROM assignments WHERE id = ?`, id)

	var a core.Assignment
	var start, end, classification, complexity, createdAt string
	err := row.Scan(&a.ID, &a.ProjectID, &a.ResourceID, &start, &end,
		&a.Subprocess, &a.Ordinal, &classification, &complexity, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	a.StartWeekMonday = parseDate(start)
	a.EndWeekMonday = parseDate(end)
	a.Classification = core.Classification(classification)
	a.Complexity = core.Complexity(complexity)
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}

// DeleteAssignment removes an assignment together with its week entries.
func (r *Repository) DeleteAssignment(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	var exists int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM assignments WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check assignment: %w", err)
	}
	if exists == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignment_weeks WHERE assignment_id = ?`, id); err != nil {
		return fmt.Errorf("delete week entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Assignment deleted", "id", id)
	return nil
}

// ListWeekEntriesByAssignment returns the week entries owned by one
// assignment, ordered by week.
func (r *Repository) ListWeekEntriesByAssignment(ctx context.Context, assignmentID int64) ([]core.WeekEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, assignment_id, week_monday, week_friday, month_label, week_label,
		        percentage, subprocess, can_ordinal, project_id, resource_id, created_at
		 FROM assignment_weeks WHERE assignment_id = ? ORDER BY week_monday`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list week entries: %w", err)
	}
	defer rows.Close()

	var out []core.WeekEntry
	for rows.Next() {
		var w core.WeekEntry
		var monday, friday, createdAt string
		if err := rows.Scan(&w.ID, &w.AssignmentID, &monday, &friday, &w.MonthLabel, &w.WeekLabel,
			&w.Percentage, &w.Subprocess, &w.Ordinal, &w.ProjectID, &w.ResourceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan week entry: %w", err)
		}
		w.WeekMonday = parseDate(monday)
		w.WeekFriday = parseDate(friday)
		w.CreatedAt = parseTimestamp(createdAt)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate week entries: %w", err)
	}
	return out, nil
}

// SumPercentage returns the committed percentage for one resource/week,
// zero when no entries exist.
func (r *Repository) SumPercentage(ctx context.Context, resourceID int64, weekMonday time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(percentage), 0) FROM assignment_weeks
		 WHERE resource_id = ? AND week_monday = ?`,
		resourceID, weekMonday.Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum percentage: %w", err)
	}
	return total, nil
}

// ListAssignmentIDsByProject returns the ids of every assignment on a project.
func (r *Repository) ListAssignmentIDsByProject(ctx context.Context, projectID int64) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM assignments WHERE project_id = ? ORDER BY id`, projectID)
}

// ListAssignmentIDsByResource returns the ids of every assignment on a resource.
func (r *Repository) ListAssignmentIDsByResource(ctx context.Context, resourceID int64) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM assignments WHERE resource_id = ? ORDER BY id`, resourceID)
}

func (r *Repository) listIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return out, nil
}

// ---- shared helpers ----

func sumPercentageTx(ctx context.Context, tx *sql.Tx, resourceID int64, weekMonday time.Time) (float64, error) {
	var total float64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(percentage), 0) FROM assignment_weeks
		 WHERE resource_id = ? AND week_monday = ?`,
		resourceID, weekMonday.Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum percentage: %w", err)
	}
	return total, nil
}

func insertAssignmentTx(ctx context.Context, tx *sql.Tx, a *core.Assignment) error {
	a.CreatedAt = time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (project_id, resource_id, start_week_monday, end_week_monday,
		                          subprocess, can_ordinal, classification, complexity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ProjectID, a.ResourceID,
		a.StartWeekMonday.Format(dateLayout), a.EndWeekMonday.Format(dateLayout),
		a.Subprocess, a.Ordinal, string(a.Classification), string(a.Complexity),
		a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	a.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("assignment insert id: %w", err)
	}
	return nil
}

func insertWeekEntryTx(ctx context.Context, tx *sql.Tx, w *core.WeekEntry) error {
	w.CreatedAt = time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO assignment_weeks (assignment_id, week_monday, week_friday, month_label,
		                               week_label, percentage, subprocess, can_ordinal,
		                               project_id, resource_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.AssignmentID,
		w.WeekMonday.Format(dateLayout), w.WeekFriday.Format(dateLayout),
		w.MonthLabel, w.WeekLabel, w.Percentage, w.Subprocess, w.Ordinal,
		w.ProjectID, w.ResourceID,
		w.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert week entry: %w", err)
	}
	w.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("week entry insert id: %w", err)
	}
	return nil
}

// cascadeDelete removes a resource or project row together with the week
// entries and assignments that reference it, child rows first.
func (r *Repository) cascadeDelete(ctx context.Context, table, fkColumn string, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cascade tx: %w", err)
	}
	defer tx.Rollback()

	var exists int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if exists == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignment_weeks WHERE `+fkColumn+` = ?`, id); err != nil {
		return fmt.Errorf("delete week entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE `+fkColumn+` = ?`, id); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cascade: %w", err)
	}

	slog.InfoContext(ctx, "Cascade delete completed", "table", table, "id", id)
	return nil
}

func (r *Repository) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

func scanResource(row *sql.Row) (*core.Resource, error) {
	var res core.Resource
	var createdAt string
	err := row.Scan(&res.ID, &res.Name, &res.Unit, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan resource: %w", err)
	}
	res.CreatedAt = parseTimestamp(createdAt)
	return &res, nil
}

func scanProject(row *sql.Row) (*core.Project, error) {
	var p core.Project
	var classification, complexity, createdAt string
	var hasResource int
	err := row.Scan(&p.ID, &p.Name, &classification, &p.Phase, &complexity, &hasResource, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Classification = core.Classification(classification)
	p.Complexity = core.Complexity(complexity)
	p.HasResource = hasResource != 0
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

// parseDate reads a stored YYYY-MM-DD value; stored rows are always written
// by this package so a parse failure yields the zero time rather than an error.
func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
