package services

import (
	"context"
	"sort"
	"time"

	"carga/internal/calendar"
	"carga/internal/core"
	"carga/internal/storage"
)

// ReportService builds the read-side aggregations. Every windowed report is
// densified: the window drives the shape, the ledger only fills cells in.
// A window that cannot be built (bad start date, weeks <= 0) yields an empty
// report, never an error.
type ReportService struct {
	storage *storage.Repository
}

func NewReportService(storage *storage.Repository) *ReportService {
	return &ReportService{storage: storage}
}

type (
	// WeekRef is one column of a report window.
	WeekRef struct {
		WeekMonday string `json:"week_monday"`
		WeekFriday string `json:"week_friday"`
		Label      string `json:"label"`
	}

	WindowResponse struct {
		Labels []string  `json:"labels"`
		Weeks  []WeekRef `json:"weeks"`
	}

	// CapacityGridResponse maps each resource to one load value per label.
	CapacityGridResponse struct {
		Labels     []string             `json:"labels"`
		ByResource map[string][]float64 `json:"by_resource"`
	}

	// PersonTypeBreakdown is one person's row block in the resources-vs
	// report: per classification, per-week load, entry counts and the
	// distinct projects touched.
	PersonTypeBreakdown struct {
		LoadByTypeWeek    map[string][]float64 `json:"load_by_type_week"`
		EntriesByTypeWeek map[string][]int     `json:"entries_by_type_week"`
		ProjectsByType    map[string][]string  `json:"projects_by_type"`
	}

	ResourceVsTypeResponse struct {
		Labels   []string                       `json:"labels"`
		Types    []string                       `json:"types"`
		People   []string                       `json:"people"`
		ByPerson map[string]PersonTypeBreakdown `json:"by_person"`
	}

	// ProjectAverage is one project's mean weekly load over the window.
	ProjectAverage struct {
		Project string    `json:"project"`
		Average float64   `json:"average"`
		PerWeek []float64 `json:"per_week"`
	}

	ProjectSummary struct {
		ID            int64   `json:"id"`
		Name          string  `json:"name"`
		ResourceCount int     `json:"resource_count"`
		StartDate     *string `json:"start_date"`
		EndDate       *string `json:"end_date"`
	}

	ResourceSummary struct {
		ID         int64              `json:"id"`
		Name       string             `json:"name"`
		Weeks      int                `json:"weeks"`
		LoadByType map[string]float64 `json:"load_by_type"`
	}

	ProjectRef struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	SubprocessCount struct {
		Subprocess string `json:"subprocess"`
		Count      int    `json:"count"`
	}
)

// ComputeWindow materializes the week columns for a start date and count.
func (s *ReportService) ComputeWindow(start string, weeks int) WindowResponse {
	mondays, labels := calendar.BuildWindow(start, weeks)
	resp := WindowResponse{Labels: labels, Weeks: make([]WeekRef, 0, len(mondays))}
	for i, m := range mondays {
		resp.Weeks = append(resp.Weeks, WeekRef{
			WeekMonday: m.Format(calendar.DateLayout),
			WeekFriday: calendar.FridayOf(m).Format(calendar.DateLayout),
			Label:      labels[i],
		})
	}
	return resp
}

// CapacityGrid returns every resource's total load per window week. Resources
// with no entries in the window still get a zero-filled row.
func (s *ReportService) CapacityGrid(ctx context.Context, start string, weeks int) (CapacityGridResponse, error) {
	mondays, labels := calendar.BuildWindow(start, weeks)
	resp := CapacityGridResponse{Labels: labels, ByResource: map[string][]float64{}}
	if len(mondays) == 0 {
		return resp, nil
	}

	names, err := s.storage.ListResourceNames(ctx)
	if err != nil {
		return CapacityGridResponse{}, err
	}
	for _, name := range names {
		resp.ByResource[name] = make([]float64, len(labels))
	}

	index := weekIndex(mondays)
	rows, err := s.storage.CapacityRows(ctx, mondays[0], mondays[len(mondays)-1])
	if err != nil {
		return CapacityGridResponse{}, err
	}
	for _, row := range rows {
		i, ok := index[row.WeekMonday]
		if !ok {
			continue
		}
		cells, ok := resp.ByResource[row.ResourceName]
		if !ok {
			// Resource created concurrently with the name listing.
			cells = make([]float64, len(labels))
			resp.ByResource[row.ResourceName] = cells
		}
		cells[i] = row.Percentage
	}
	return resp, nil
}

// ResourceVsProjectType breaks each person's load down by project
// classification per window week. An unknown resource filter falls back to
// all people rather than an empty report.
func (s *ReportService) ResourceVsProjectType(ctx context.Context, start string, weeks int, resourceFilter string) (ResourceVsTypeResponse, error) {
	mondays, labels := calendar.BuildWindow(start, weeks)
	resp := ResourceVsTypeResponse{
		Labels:   labels,
		Types:    classificationNames(),
		People:   []string{},
		ByPerson: map[string]PersonTypeBreakdown{},
	}
	if len(mondays) == 0 {
		return resp, nil
	}

	names, err := s.storage.ListResourceNames(ctx)
	if err != nil {
		return ResourceVsTypeResponse{}, err
	}

	filter := ""
	people := names
	for _, name := range names {
		if name == resourceFilter {
			filter = resourceFilter
			people = []string{resourceFilter}
			break
		}
	}
	resp.People = people

	for _, person := range people {
		resp.ByPerson[person] = newBreakdown(len(labels))
	}

	index := weekIndex(mondays)
	rows, err := s.storage.TypeLoadRows(ctx, mondays[0], mondays[len(mondays)-1], filter)
	if err != nil {
		return ResourceVsTypeResponse{}, err
	}

	seen := map[string]map[string]map[int64]bool{}
	for _, row := range rows {
		i, ok := index[row.WeekMonday]
		if !ok {
			continue
		}
		b, ok := resp.ByPerson[row.ResourceName]
		if !ok {
			continue
		}
		class := string(row.Classification)
		if _, ok := b.LoadByTypeWeek[class]; !ok {
			// Snapshot classification no longer in the known set.
			b.LoadByTypeWeek[class] = make([]float64, len(labels))
			b.EntriesByTypeWeek[class] = make([]int, len(labels))
		}
		b.LoadByTypeWeek[class][i] += row.Percentage
		b.EntriesByTypeWeek[class][i] += row.Entries

		if seen[row.ResourceName] == nil {
			seen[row.ResourceName] = map[string]map[int64]bool{}
		}
		if seen[row.ResourceName][class] == nil {
			seen[row.ResourceName][class] = map[int64]bool{}
		}
		if !seen[row.ResourceName][class][row.ProjectID] {
			seen[row.ResourceName][class][row.ProjectID] = true
			b.ProjectsByType[class] = append(b.ProjectsByType[class], row.ProjectName)
			resp.ByPerson[row.ResourceName] = b
		}
	}
	return resp, nil
}

// ProjectWeeklyAverage returns every project's mean load per window week,
// zero-activity projects included, highest average first.
func (s *ReportService) ProjectWeeklyAverage(ctx context.Context, start string, weeks int) ([]ProjectAverage, error) {
	mondays, labels := calendar.BuildWindow(start, weeks)
	if len(mondays) == 0 {
		return []ProjectAverage{}, nil
	}

	names, err := s.storage.ListProjectNames(ctx)
	if err != nil {
		return nil, err
	}
	perProject := make(map[string][]float64, len(names))
	for _, name := range names {
		perProject[name] = make([]float64, len(labels))
	}

	index := weekIndex(mondays)
	rows, err := s.storage.ProjectWeekRows(ctx, mondays[0], mondays[len(mondays)-1])
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		i, ok := index[row.WeekMonday]
		if !ok {
			continue
		}
		cells, ok := perProject[row.ProjectName]
		if !ok {
			cells = make([]float64, len(labels))
			perProject[row.ProjectName] = cells
		}
		cells[i] = row.Percentage
	}

	out := make([]ProjectAverage, 0, len(perProject))
	for name, cells := range perProject {
		var sum float64
		for _, v := range cells {
			sum += v
		}
		out = append(out, ProjectAverage{
			Project: name,
			Average: sum / float64(len(cells)),
			PerWeek: cells,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Average != out[j].Average {
			return out[i].Average > out[j].Average
		}
		return out[i].Project < out[j].Project
	})
	return out, nil
}

// ProjectsSummary lists every project with its distinct resource count and
// allocation span.
func (s *ReportService) ProjectsSummary(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.storage.ProjectsSummary(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProjectSummary{
			ID:            row.ID,
			Name:          row.Name,
			ResourceCount: row.ResourceCount,
			StartDate:     formatDatePtr(row.FirstMonday),
			EndDate:       formatDatePtr(row.LastFriday),
		})
	}
	return out, nil
}

// ProjectsWithAssignments lists the projects that have at least one
// allocation.
func (s *ReportService) ProjectsWithAssignments(ctx context.Context) ([]ProjectRef, error) {
	rows, err := s.storage.ProjectsSummary(ctx)
	if err != nil {
		return nil, err
	}
	out := []ProjectRef{}
	for _, row := range rows {
		if row.ResourceCount > 0 {
			out = append(out, ProjectRef{ID: row.ID, Name: row.Name})
		}
	}
	return out, nil
}

// ResourcesSummary aggregates each resource's committed weeks and per
// classification load over the whole ledger.
func (s *ReportService) ResourcesSummary(ctx context.Context) ([]ResourceSummary, error) {
	rows, err := s.storage.ResourcesSummary(ctx)
	if err != nil {
		return nil, err
	}

	byID := map[int64]*ResourceSummary{}
	var order []int64
	for _, row := range rows {
		summary, ok := byID[row.ResourceID]
		if !ok {
			summary = &ResourceSummary{
				ID:         row.ResourceID,
				Name:       row.ResourceName,
				LoadByType: map[string]float64{},
			}
			byID[row.ResourceID] = summary
			order = append(order, row.ResourceID)
		}
		summary.Weeks += row.WeekCount
		if row.Classification != "" {
			summary.LoadByType[string(row.Classification)] += row.TotalPct
		}
	}

	out := make([]ResourceSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// ProjectSubprocessesCurrentMonth counts week entries per subprocess for one
// project over the current calendar month. The "Todos" resource name means
// no filter. For Alta and Media complexity projects the default subprocess
// labels are noise and are excluded.
func (s *ReportService) ProjectSubprocessesCurrentMonth(ctx context.Context, projectID int64, resourceName string) ([]SubprocessCount, error) {
	project, err := s.storage.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if resourceName == core.AllResourcesFilter {
		resourceName = ""
	}

	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	var exclude []string
	if project.Complexity == core.ComplexityAlta || project.Complexity == core.ComplexityMedia {
		exclude = core.DefaultSubprocessLabels
	}

	rows, err := s.storage.SubprocessCounts(ctx, projectID, from, to, resourceName, exclude)
	if err != nil {
		return nil, err
	}
	out := make([]SubprocessCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, SubprocessCount{Subprocess: row.Subprocess, Count: row.Count})
	}
	return out, nil
}

func newBreakdown(width int) PersonTypeBreakdown {
	b := PersonTypeBreakdown{
		LoadByTypeWeek:    map[string][]float64{},
		EntriesByTypeWeek: map[string][]int{},
		ProjectsByType:    map[string][]string{},
	}
	for _, class := range classificationNames() {
		b.LoadByTypeWeek[class] = make([]float64, width)
		b.EntriesByTypeWeek[class] = make([]int, width)
		b.ProjectsByType[class] = []string{}
	}
	return b
}

func classificationNames() []string {
	out := make([]string, 0, len(core.Classifications))
	for _, c := range core.Classifications {
		out = append(out, string(c))
	}
	return out
}

func weekIndex(mondays []time.Time) map[time.Time]int {
	index := make(map[time.Time]int, len(mondays))
	for i, m := range mondays {
		index[m] = i
	}
	return index
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(calendar.DateLayout)
	return &s
}
