package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carga/internal/core"
	"carga/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReports(t *testing.T) (*ReportService, *LedgerService) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "carga_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewReportService(repo), NewLedgerService(repo, nil)
}

func TestComputeWindow(t *testing.T) {
	svc, _ := newTestReports(t)

	resp := svc.ComputeWindow("2024-03-04", 3)
	require.Len(t, resp.Weeks, 3)
	assert.Equal(t, []string{"Marzo_24:Sem 2", "Marzo_24:Sem 3", "Marzo_24:Sem 4"}, resp.Labels)
	assert.Equal(t, "2024-03-04", resp.Weeks[0].WeekMonday)
	assert.Equal(t, "2024-03-08", resp.Weeks[0].WeekFriday)
	assert.Equal(t, "Marzo_24:Sem 2", resp.Weeks[0].Label)
}

func TestComputeWindow_Degrades(t *testing.T) {
	svc, _ := newTestReports(t)

	assert.Empty(t, svc.ComputeWindow("garbage", 3).Weeks)
	assert.Empty(t, svc.ComputeWindow("2024-03-04", 0).Weeks)
	assert.Empty(t, svc.ComputeWindow("2024-03-04", -2).Weeks)
}

func TestCapacityGrid_Densified(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res1 := &core.Resource{Name: "Ana Torres"}
	res2 := &core.Resource{Name: "Benito Silva"}
	require.NoError(t, ledger.CreateResource(ctx, res1))
	require.NoError(t, ledger.CreateResource(ctx, res2))

	p := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, p))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: p.ID, ResourceID: res1.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-11",
		Percentage: floatPtr(40),
	})
	require.NoError(t, err)

	grid, err := reports.CapacityGrid(ctx, "2024-03-04", 3)
	require.NoError(t, err)
	require.Len(t, grid.Labels, 3)

	assert.Equal(t, []float64{40, 40, 0}, grid.ByResource["Ana Torres"])
	// Idle resources still appear, zero filled.
	assert.Equal(t, []float64{0, 0, 0}, grid.ByResource["Benito Silva"])
}

func TestCapacityGrid_EmptyWindow(t *testing.T) {
	reports, _ := newTestReports(t)

	grid, err := reports.CapacityGrid(context.Background(), "garbage", 4)
	require.NoError(t, err)
	assert.Empty(t, grid.Labels)
	assert.Empty(t, grid.ByResource)
}

func TestResourceVsProjectType(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	p1 := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityBaja}
	p2 := &core.Project{Name: "Plan 2025", Classification: core.ClassEstrategia, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, p1))
	require.NoError(t, ledger.CreateProject(ctx, p2))

	for _, proj := range []*core.Project{p1, p2} {
		_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
			ProjectID: proj.ID, ResourceID: res.ID,
			StartWeek: "2024-03-04", EndWeek: "2024-03-04",
			Percentage: floatPtr(20),
		})
		require.NoError(t, err)
	}
	// Second allocation on the same project: load adds up, project listed once.
	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: p1.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-04",
		Percentage: floatPtr(10),
	})
	require.NoError(t, err)

	resp, err := reports.ResourceVsProjectType(ctx, "2024-03-04", 2, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Proyecto", "Anteproyecto", "Estrategia", "Admon"}, resp.Types)
	assert.Equal(t, []string{"Ana Torres"}, resp.People)

	ana := resp.ByPerson["Ana Torres"]
	assert.Equal(t, []float64{30, 0}, ana.LoadByTypeWeek["Proyecto"])
	assert.Equal(t, []float64{20, 0}, ana.LoadByTypeWeek["Estrategia"])
	assert.Equal(t, []int{2, 0}, ana.EntriesByTypeWeek["Proyecto"])
	assert.Equal(t, []string{"Core Bancario"}, ana.ProjectsByType["Proyecto"])
	assert.Equal(t, []string{"Plan 2025"}, ana.ProjectsByType["Estrategia"])
	assert.Empty(t, ana.ProjectsByType["Admon"])
}

func TestResourceVsProjectType_UnknownFilterFallsBack(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	resp, err := reports.ResourceVsProjectType(ctx, "2024-03-04", 2, "Nadie Conocido")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Torres"}, resp.People, "unknown filter falls back to everyone")
}

func TestProjectWeeklyAverage(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	busy := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityBaja}
	idle := &core.Project{Name: "Archivado", Classification: core.ClassAdmon, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, busy))
	require.NoError(t, ledger.CreateProject(ctx, idle))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: busy.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-11",
		Percentage: floatPtr(50),
	})
	require.NoError(t, err)

	out, err := reports.ProjectWeeklyAverage(ctx, "2024-03-04", 4)
	require.NoError(t, err)
	require.Len(t, out, 2, "zero-activity projects included")

	assert.Equal(t, "Core Bancario", out[0].Project)
	assert.InDelta(t, 25.0, out[0].Average, 1e-9) // (50+50+0+0)/4
	assert.Equal(t, []float64{50, 50, 0, 0}, out[0].PerWeek)

	assert.Equal(t, "Archivado", out[1].Project)
	assert.Zero(t, out[1].Average)
}

func TestProjectsSummaryAndWithAssignments(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	active := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityBaja}
	empty := &core.Project{Name: "Sin Gente", Classification: core.ClassAdmon, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, active))
	require.NoError(t, ledger.CreateProject(ctx, empty))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: active.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-18",
		Percentage: floatPtr(30),
	})
	require.NoError(t, err)

	summaries, err := reports.ProjectsSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byName := map[string]ProjectSummary{}
	for _, s := range summaries {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "Core Bancario")
	assert.Equal(t, 1, byName["Core Bancario"].ResourceCount)
	require.NotNil(t, byName["Core Bancario"].StartDate)
	assert.Equal(t, "2024-03-04", *byName["Core Bancario"].StartDate)
	require.NotNil(t, byName["Core Bancario"].EndDate)
	assert.Equal(t, "2024-03-22", *byName["Core Bancario"].EndDate)

	assert.Zero(t, byName["Sin Gente"].ResourceCount)
	assert.Nil(t, byName["Sin Gente"].StartDate)

	refs, err := reports.ProjectsWithAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Core Bancario", refs[0].Name)
}

func TestResourcesSummary(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	p1 := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityBaja}
	p2 := &core.Project{Name: "Plan 2025", Classification: core.ClassEstrategia, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, p1))
	require.NoError(t, ledger.CreateProject(ctx, p2))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: p1.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-11",
		Percentage: floatPtr(40),
	})
	require.NoError(t, err)
	_, err = ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: p2.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-04",
		Percentage: floatPtr(20),
	})
	require.NoError(t, err)

	out, err := reports.ResourcesSummary(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "Ana Torres", out[0].Name)
	assert.Equal(t, 3, out[0].Weeks)
	assert.Equal(t, 80.0, out[0].LoadByType["Proyecto"])
	assert.Equal(t, 20.0, out[0].LoadByType["Estrategia"])
}

func TestReportsSeeClassificationSnapshot(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	p := &core.Project{Name: "Core Bancario", Classification: core.ClassAnteproyecto, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, p))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: p.ID, ResourceID: res.ID,
		StartWeek: "2024-03-04", EndWeek: "2024-03-04",
		Percentage: floatPtr(15),
	})
	require.NoError(t, err)

	resp, err := reports.ResourceVsProjectType(ctx, "2024-03-04", 1, "")
	require.NoError(t, err)
	ana := resp.ByPerson["Ana Torres"]
	assert.Equal(t, []float64{15}, ana.LoadByTypeWeek["Anteproyecto"])
}

// currentMonthMonday returns the first Monday of the current month, which is
// always inside the month window the subprocess report inspects.
func currentMonthMonday(t *testing.T) string {
	t.Helper()
	now := time.Now().UTC()
	d := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func TestProjectSubprocessesCurrentMonth(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()
	monday := currentMonthMonday(t)

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	alta := &core.Project{Name: "Core Bancario", Classification: core.ClassProyecto, Complexity: core.ComplexityAlta}
	require.NoError(t, ledger.CreateProject(ctx, alta))

	for _, subprocess := range []string{"General", "Requerimientos | Desarrollos", "Requerimientos | Desarrollos | Directivo", "Diseno"} {
		_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
			ProjectID: alta.ID, ResourceID: res.ID,
			StartWeek: monday, EndWeek: monday,
			Percentage: floatPtr(10),
			Subprocess: subprocess,
		})
		require.NoError(t, err)
	}

	// Alta projects drop every default label, keeping only real subprocesses.
	out, err := reports.ProjectSubprocessesCurrentMonth(ctx, alta.ID, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Diseno", out[0].Subprocess)
	assert.Equal(t, 1, out[0].Count)

	// "Todos" means no resource filter, not a resource literally named that.
	out, err = reports.ProjectSubprocessesCurrentMonth(ctx, alta.ID, "Todos")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Diseno", out[0].Subprocess)

	out, err = reports.ProjectSubprocessesCurrentMonth(ctx, alta.ID, "Benito Silva")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProjectSubprocessesCurrentMonth_BajaKeepsDefaults(t *testing.T) {
	reports, ledger := newTestReports(t)
	ctx := context.Background()
	monday := currentMonthMonday(t)

	res := &core.Resource{Name: "Ana Torres"}
	require.NoError(t, ledger.CreateResource(ctx, res))

	baja := &core.Project{Name: "Mantenimiento", Classification: core.ClassAdmon, Complexity: core.ComplexityBaja}
	require.NoError(t, ledger.CreateProject(ctx, baja))

	_, err := ledger.CreateAssignment(ctx, CreateAssignmentRequest{
		ProjectID: baja.ID, ResourceID: res.ID,
		StartWeek: monday, EndWeek: monday,
		Percentage: floatPtr(10),
	})
	require.NoError(t, err)

	out, err := reports.ProjectSubprocessesCurrentMonth(ctx, baja.ID, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, core.DefaultSubprocess, out[0].Subprocess)
}
