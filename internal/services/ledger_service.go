package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carga/internal/amqp"
	"carga/internal/calendar"
	"carga/internal/core"
	"carga/internal/storage"
)

// LedgerService owns every write to the allocation ledger. Capacity is
// enforced by storage inside the write transaction; this layer validates
// input, expands week ranges and stamps labels and project snapshots.
type LedgerService struct {
	storage    *storage.Repository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.Repository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// CreateAssignmentRequest describes one allocation over an inclusive Monday
// range. Dates arrive as YYYY-MM-DD strings straight from the transport.
type CreateAssignmentRequest struct {
	ProjectID  int64
	ResourceID int64
	StartWeek  string
	EndWeek    string
	Percentage *float64
	Subprocess string
	Ordinal    int
}

// CreateBulkRequest allocates consecutive weeks starting at StartWeek with
// per-week percentages. Subprocesses is optional; when present it must match
// Percentages in length. Weeks with zero percentage are skipped.
type CreateBulkRequest struct {
	ProjectID    int64
	ResourceID   int64
	StartWeek    string
	Percentages  []float64
	Subprocesses []string
}

// CreatedWeek reports one admitted week of a bulk request.
type CreatedWeek struct {
	AssignmentID int64     `json:"assignment_id"`
	WeekMonday   time.Time `json:"week_monday"`
	Label        string    `json:"label"`
	Percentage   float64   `json:"percentage"`
	Subprocess   string    `json:"subprocess"`
}

// CreateAssignment validates and admits one allocation, then asks the export
// worker to sync it. Publishing is best-effort: the ledger row is the source
// of truth.
func (s *LedgerService) CreateAssignment(ctx context.Context, req CreateAssignmentRequest) (*core.Assignment, error) {
	start, end, err := parseRange(req.StartWeek, req.EndWeek)
	if err != nil {
		return nil, err
	}

	pct := core.DefaultPercentage
	if req.Percentage != nil {
		pct = *req.Percentage
	}
	if pct <= 0 || pct > core.CapacityCeiling {
		return nil, fmt.Errorf("percentage %v out of (0, %v]: %w", pct, core.CapacityCeiling, core.ErrInvalidInput)
	}

	project, err := s.storage.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project %d: %w", req.ProjectID, err)
	}
	if _, err := s.storage.GetResource(ctx, req.ResourceID); err != nil {
		return nil, fmt.Errorf("resource %d: %w", req.ResourceID, err)
	}

	subprocess := strings.TrimSpace(req.Subprocess)
	if subprocess == "" {
		subprocess = core.DefaultSubprocess
	}
	ordinal := req.Ordinal
	if ordinal <= 0 {
		ordinal = 1
	}

	a := &core.Assignment{
		ProjectID:       req.ProjectID,
		ResourceID:      req.ResourceID,
		StartWeekMonday: start,
		EndWeekMonday:   end,
		Subprocess:      subprocess,
		Ordinal:         ordinal,
		Classification:  project.Classification,
		Complexity:      project.Complexity,
	}

	var weeks []core.WeekEntry
	for _, monday := range calendar.DaterangeMondays(start, end) {
		weeks = append(weeks, buildWeekEntry(a, monday, pct))
	}

	if err := s.storage.CreateAssignment(ctx, a, weeks); err != nil {
		return nil, err
	}

	s.publishSync(ctx, a.ID)
	return a, nil
}

// CreateBulkAssignments admits one single-week assignment per non-zero
// percentage, all-or-nothing. The start date is snapped to its Monday, so
// any day of the first week may be given.
func (s *LedgerService) CreateBulkAssignments(ctx context.Context, req CreateBulkRequest) ([]CreatedWeek, error) {
	startDate, err := calendar.ParseDate(req.StartWeek)
	if err != nil {
		return nil, fmt.Errorf("parse start week %q: %w", req.StartWeek, core.ErrInvalidInput)
	}
	start := calendar.MondayOf(startDate)
	if len(req.Percentages) == 0 {
		return nil, fmt.Errorf("empty percentage list: %w", core.ErrInvalidInput)
	}
	if len(req.Subprocesses) > 0 && len(req.Subprocesses) != len(req.Percentages) {
		return nil, fmt.Errorf("subprocess list length %d != percentage list length %d: %w",
			len(req.Subprocesses), len(req.Percentages), core.ErrInvalidInput)
	}

	project, err := s.storage.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project %d: %w", req.ProjectID, err)
	}
	if _, err := s.storage.GetResource(ctx, req.ResourceID); err != nil {
		return nil, fmt.Errorf("resource %d: %w", req.ResourceID, err)
	}

	var items []core.AssignmentWithWeek
	for i, pct := range req.Percentages {
		if pct == 0 {
			continue
		}
		if pct < 0 || pct > core.CapacityCeiling {
			return nil, fmt.Errorf("week %d percentage %v out of [0, %v]: %w",
				i+1, pct, core.CapacityCeiling, core.ErrInvalidInput)
		}

		subprocess := core.DefaultSubprocess
		if len(req.Subprocesses) > 0 {
			if sp := strings.TrimSpace(req.Subprocesses[i]); sp != "" {
				subprocess = sp
			}
		}

		monday := start.AddDate(0, 0, 7*i)
		a := core.Assignment{
			ProjectID:       req.ProjectID,
			ResourceID:      req.ResourceID,
			StartWeekMonday: monday,
			EndWeekMonday:   monday,
			Subprocess:      subprocess,
			Ordinal:         1,
			Classification:  project.Classification,
			Complexity:      project.Complexity,
		}
		items = append(items, core.AssignmentWithWeek{
			Assignment: a,
			Week:       buildWeekEntry(&a, monday, pct),
		})
	}

	if len(items) == 0 {
		slog.InfoContext(ctx, "Bulk request had only zero weeks, nothing created",
			"project_id", req.ProjectID, "resource_id", req.ResourceID)
		return []CreatedWeek{}, nil
	}

	if err := s.storage.CreateAssignmentsBatch(ctx, items); err != nil {
		return nil, err
	}

	created := make([]CreatedWeek, 0, len(items))
	for _, it := range items {
		s.publishSync(ctx, it.Assignment.ID)
		created = append(created, CreatedWeek{
			AssignmentID: it.Assignment.ID,
			WeekMonday:   it.Week.WeekMonday,
			Label:        it.Week.MonthLabel + ":" + it.Week.WeekLabel,
			Percentage:   it.Week.Percentage,
			Subprocess:   it.Week.Subprocess,
		})
	}
	return created, nil
}

// AssignmentWeeks returns the week entries of one assignment.
func (s *LedgerService) AssignmentWeeks(ctx context.Context, id int64) ([]core.WeekEntry, error) {
	if _, err := s.storage.GetAssignment(ctx, id); err != nil {
		return nil, err
	}
	return s.storage.ListWeekEntriesByAssignment(ctx, id)
}

// DeleteAssignment removes one allocation and its weeks, then asks the
// export worker to drop its spreadsheet rows.
func (s *LedgerService) DeleteAssignment(ctx context.Context, id int64) error {
	if err := s.storage.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.publishDelete(ctx, id)
	return nil
}

// DeleteProject cascades over the project's assignments and week entries.
func (s *LedgerService) DeleteProject(ctx context.Context, id int64) error {
	ids, err := s.storage.ListAssignmentIDsByProject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteProject(ctx, id); err != nil {
		return err
	}
	for _, aid := range ids {
		s.publishDelete(ctx, aid)
	}
	return nil
}

// DeleteResource cascades over the resource's assignments and week entries.
func (s *LedgerService) DeleteResource(ctx context.Context, id int64) error {
	ids, err := s.storage.ListAssignmentIDsByResource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteResource(ctx, id); err != nil {
		return err
	}
	for _, aid := range ids {
		s.publishDelete(ctx, aid)
	}
	return nil
}

func (s *LedgerService) CreateResource(ctx context.Context, res *core.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	res.Name = strings.TrimSpace(res.Name)
	return s.storage.CreateResource(ctx, res)
}

func (s *LedgerService) ListResources(ctx context.Context) ([]core.Resource, error) {
	return s.storage.ListResources(ctx)
}

func (s *LedgerService) CreateProject(ctx context.Context, p *core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	return s.storage.CreateProject(ctx, p)
}

func (s *LedgerService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.storage.ListProjects(ctx)
}

func (s *LedgerService) publishSync(ctx context.Context, assignmentID int64) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishExportSync(ctx, assignmentID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export sync message",
			"assignment_id", assignmentID, "error", err)
	}
}

func (s *LedgerService) publishDelete(ctx context.Context, assignmentID int64) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishExportDelete(ctx, assignmentID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export delete message",
			"assignment_id", assignmentID, "error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

func buildWeekEntry(a *core.Assignment, monday time.Time, pct float64) core.WeekEntry {
	return core.WeekEntry{
		WeekMonday: monday,
		WeekFriday: calendar.FridayOf(monday),
		MonthLabel: calendar.MonthLabel(monday),
		WeekLabel:  calendar.WeekLabel(monday),
		Percentage: pct,
		Subprocess: a.Subprocess,
		Ordinal:    a.Ordinal,
		ProjectID:  a.ProjectID,
		ResourceID: a.ResourceID,
	}
}

func parseMonday(s string) (time.Time, error) {
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse week %q: %w", s, core.ErrInvalidInput)
	}
	if !calendar.IsMonday(d) {
		return time.Time{}, fmt.Errorf("week %q is not a Monday: %w", s, core.ErrInvalidRange)
	}
	return d, nil
}

func parseRange(startStr, endStr string) (start, end time.Time, err error) {
	start, err = parseMonday(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = parseMonday(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end week %s before start week %s: %w",
			endStr, startStr, core.ErrInvalidRange)
	}
	return start, end, nil
}
