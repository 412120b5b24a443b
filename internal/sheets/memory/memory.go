// Package memory is an in-process row store used in tests and local
// development, where no spreadsheet is available.
package memory

import (
	"context"
	"sync"

	ports "carga/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []ports.Row
}

var (
	_ ports.RowAppender = (*Store)(nil)
	_ ports.RowDeleter  = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

func (s *Store) AppendRows(_ context.Context, rows []ports.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *Store) DeleteRows(_ context.Context, assignmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.AssignmentID != assignmentID {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	return nil
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.Row, len(s.rows))
	copy(out, s.rows)
	return out
}
