package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassificationValid(t *testing.T) {
	for _, c := range Classifications {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Classification("Otro").Valid())
	assert.False(t, Classification("").Valid())
}

func TestComplexityValid(t *testing.T) {
	assert.True(t, ComplexityAlta.Valid())
	assert.True(t, ComplexityMedia.Valid())
	assert.True(t, ComplexityBaja.Valid())
	assert.False(t, Complexity("Extrema").Valid())
}

func TestResourceValidate(t *testing.T) {
	assert.NoError(t, Resource{Name: "Ana"}.Validate())
	assert.ErrorIs(t, Resource{Name: "   "}.Validate(), ErrInvalidInput)
}

func TestProjectValidate(t *testing.T) {
	valid := Project{Name: "Core Bancario", Classification: ClassProyecto, Complexity: ComplexityAlta}
	assert.NoError(t, valid.Validate())

	t.Run("empty name", func(t *testing.T) {
		p := valid
		p.Name = ""
		assert.ErrorIs(t, p.Validate(), ErrInvalidInput)
	})
	t.Run("bad classification", func(t *testing.T) {
		p := valid
		p.Classification = "Otro"
		assert.ErrorIs(t, p.Validate(), ErrInvalidInput)
	})
	t.Run("bad complexity", func(t *testing.T) {
		p := valid
		p.Complexity = "Extrema"
		assert.ErrorIs(t, p.Validate(), ErrInvalidInput)
	})
}

func TestExceedsCapacity(t *testing.T) {
	assert.False(t, ExceedsCapacity(60, 40))
	assert.True(t, ExceedsCapacity(60, 50))
	// Tolerance: exactly 100 plus float noise is still admitted.
	assert.False(t, ExceedsCapacity(99.9999999, 0.0000001))
	assert.True(t, ExceedsCapacity(100, 0.1))
}

func TestCapacityErrorMessage(t *testing.T) {
	err := &CapacityError{
		ResourceID: 7,
		Weeks: []WeekConflict{
			{WeekMonday: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Label: "Marzo_24:Sem 2", Current: 60, Attempted: 50},
		},
	}
	assert.Contains(t, err.Error(), "resource 7")
	assert.Contains(t, err.Error(), "2024-03-04")
}
