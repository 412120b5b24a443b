package core

import (
	"errors"
	"strings"
	"time"
)

// Classification groups projects for reporting.
type Classification string

// Complexity drives which allocation mode the planners use.
type Complexity string

const (
	ClassProyecto     Classification = "Proyecto"
	ClassAnteproyecto Classification = "Anteproyecto"
	ClassEstrategia   Classification = "Estrategia"
	ClassAdmon        Classification = "Admon"

	ComplexityAlta  Complexity = "Alta"
	ComplexityMedia Complexity = "Media"
	ComplexityBaja  Complexity = "Baja"
)

// Classifications lists the valid project classifications in report order.
var Classifications = []Classification{ClassProyecto, ClassAnteproyecto, ClassEstrategia, ClassAdmon}

const (
	// CapacityCeiling is the per-resource, per-week commitment limit.
	CapacityCeiling = 100.0
	// CapacityEpsilon absorbs floating point noise in capacity sums.
	CapacityEpsilon = 1e-6
	// DefaultPercentage applies when an allocation request omits the load.
	DefaultPercentage = 10.0
	// DefaultSubprocess labels bulk-mode weeks without an explicit subprocess.
	DefaultSubprocess = "General"
	// AllResourcesFilter is the sentinel resource name meaning no filter.
	AllResourcesFilter = "Todos"
)

// DefaultSubprocessLabels are the filler subprocess names the planners leave
// behind when they never picked a real one. Subprocess breakdowns for Alta
// and Media projects drop them.
var DefaultSubprocessLabels = []string{
	DefaultSubprocess,
	"Requerimientos | Desarrollos",
	"Requerimientos | Desarrollos | Directivo",
}

func (c Classification) Valid() bool {
	switch c {
	case ClassProyecto, ClassAnteproyecto, ClassEstrategia, ClassAdmon:
		return true
	}
	return false
}

func (c Complexity) Valid() bool {
	switch c {
	case ComplexityAlta, ComplexityMedia, ComplexityBaja:
		return true
	}
	return false
}

type (
	// Resource is a named person that capacity is allocated against.
	Resource struct {
		ID        int64
		Name      string
		Unit      string
		CreatedAt time.Time
	}

	// Project is the target of allocations. Classification and complexity
	// are copied onto assignments at creation time; editing a project never
	// rewrites history.
	Project struct {
		ID             int64
		Name           string
		Classification Classification
		Phase          string
		Complexity     Complexity
		HasResource    bool
		CreatedAt      time.Time
	}

	// Assignment is one admitted allocation over an inclusive Monday range.
	// It owns its WeekEntry rows; the two are created and deleted as a unit.
	Assignment struct {
		ID              int64
		ProjectID       int64
		ResourceID      int64
		StartWeekMonday time.Time
		EndWeekMonday   time.Time
		Subprocess      string
		Ordinal         int
		Classification  Classification
		Complexity      Complexity
		CreatedAt       time.Time
	}

	// WeekEntry is the atomic unit of capacity consumption: one resource,
	// one project, one week, one percentage. Immutable except by deletion.
	WeekEntry struct {
		ID           int64
		AssignmentID int64
		WeekMonday   time.Time
		WeekFriday   time.Time
		MonthLabel   string
		WeekLabel    string
		Percentage   float64
		Subprocess   string
		Ordinal      int
		ProjectID    int64
		ResourceID   int64
		CreatedAt    time.Time
	}

	// AssignmentWithWeek pairs a single-week assignment with its entry for
	// bulk admission, where every qualifying week becomes its own assignment.
	AssignmentWithWeek struct {
		Assignment Assignment
		Week       WeekEntry
	}
)

// Validate checks resource creation input.
func (r Resource) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Validate checks project creation input.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidInput
	}
	if !p.Classification.Valid() {
		return ErrInvalidInput
	}
	if !p.Complexity.Valid() {
		return ErrInvalidInput
	}
	return nil
}

// Sentinel errors for caller-visible conditions. All are recoverable and
// surfaced synchronously; none is a fatal process error.
var (
	// ErrNotFound indicates an unknown project or resource id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRange indicates an end week before the start week, or a
	// range bound that is not a Monday.
	ErrInvalidRange = errors.New("invalid week range")
	// ErrInvalidInput indicates malformed or mismatched request fields.
	ErrInvalidInput = errors.New("invalid input")
)
