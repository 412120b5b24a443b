// Package worker mirrors ledger writes into a spreadsheet. It consumes
// export messages and replays them against a row store; the HTTP API never
// waits for it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"carga/internal/amqp"
	"carga/internal/calendar"
	"carga/internal/core"
	"carga/internal/sheets"
	"carga/internal/storage"
)

type ExportWorker struct {
	storage  *storage.Repository
	appender sheets.RowAppender
	deleter  sheets.RowDeleter
}

func NewExportWorker(storage *storage.Repository, appender sheets.RowAppender, deleter sheets.RowDeleter) *ExportWorker {
	return &ExportWorker{
		storage:  storage,
		appender: appender,
		deleter:  deleter,
	}
}

// Run consumes both queues until ctx is canceled.
func (w *ExportWorker) Run(ctx context.Context, client *amqp.Client) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeExportSync(ctx, func(msg *amqp.ExportSyncMessage) error {
			return w.HandleSyncMessage(ctx, msg)
		})
	})
	g.Go(func() error {
		return client.ConsumeExportDelete(ctx, func(msg *amqp.ExportDeleteMessage) error {
			return w.HandleDeleteMessage(ctx, msg)
		})
	})
	return g.Wait()
}

// HandleSyncMessage appends one assignment's week rows to the spreadsheet.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ExportSyncMessage) error {
	slog.InfoContext(ctx, "Processing export sync message",
		"assignment_id", msg.AssignmentID)

	assignment, err := w.storage.GetAssignment(ctx, msg.AssignmentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted between publish and consume. Nothing to export.
			slog.WarnContext(ctx, "Assignment gone before export, skipping",
				"assignment_id", msg.AssignmentID)
			return nil
		}
		return fmt.Errorf("get assignment: %w", err)
	}

	weeks, err := w.storage.ListWeekEntriesByAssignment(ctx, assignment.ID)
	if err != nil {
		return fmt.Errorf("list week entries: %w", err)
	}

	resource, err := w.storage.GetResource(ctx, assignment.ResourceID)
	if err != nil {
		return fmt.Errorf("get resource: %w", err)
	}
	project, err := w.storage.GetProject(ctx, assignment.ProjectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}

	rows := make([]sheets.Row, 0, len(weeks))
	for _, week := range weeks {
		rows = append(rows, sheets.Row{
			AssignmentID: assignment.ID,
			Resource:     resource.Name,
			Project:      project.Name,
			Subprocess:   week.Subprocess,
			WeekMonday:   week.WeekMonday.Format(calendar.DateLayout),
			Label:        week.MonthLabel + ":" + week.WeekLabel,
			Percentage:   week.Percentage,
		})
	}

	if err := w.appender.AppendRows(ctx, rows); err != nil {
		return fmt.Errorf("append rows: %w", err)
	}

	slog.InfoContext(ctx, "Assignment exported",
		"assignment_id", assignment.ID,
		"rows", len(rows))
	return nil
}

// HandleDeleteMessage removes one assignment's rows from the spreadsheet.
func (w *ExportWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.ExportDeleteMessage) error {
	slog.InfoContext(ctx, "Processing export delete message",
		"assignment_id", msg.AssignmentID)

	if w.deleter == nil {
		slog.WarnContext(ctx, "No row deleter configured, skipping",
			"assignment_id", msg.AssignmentID)
		return nil
	}

	if err := w.deleter.DeleteRows(ctx, msg.AssignmentID); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	return nil
}
