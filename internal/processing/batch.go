package processing

import (
	"context"
	"fmt"
	"time"

	"wp_schema_sync/internal/accounts"
	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/resolution"

	"github.com/rs/zerolog/log"
)

// RunOptions carries the per-batch callbacks. Both may be nil.
type RunOptions struct {
	BatchID string
	Mode    model.Mode
	// Log receives one user-facing line per processed row plus a final line on cancel.
	Log func(line string)
	// Cancelled is polled before each row.
	Cancelled func() bool
	// Progress is told how many rows are done after each row.
	Progress func(done, total int)
}

// Runner processes work items one at a time: resolve account, resolve entity,
// patch. A row never starts before the previous row's patch call returned.
type Runner struct {
	resolver *resolution.Resolver
	patcher  *Patcher
}

func NewRunner(resolver *resolution.Resolver, patcher *Patcher) *Runner {
	return &Runner{resolver: resolver, patcher: patcher}
}

// Run processes items in order and returns the rows it processed. Row-level
// problems are recorded and never stop the loop; only the cancel flag (or a
// done ctx) does, and only between rows.
func (r *Runner) Run(ctx context.Context, items []model.WorkItem, registry *accounts.Registry, opts RunOptions) *model.ResultTable {
	table := &model.ResultTable{
		BatchID:   opts.BatchID,
		Mode:      opts.Mode,
		Total:     len(items),
		StartedAt: time.Now(),
	}
	deleteMode := opts.Mode == model.ModeDelete

	start := log.Info().
		Str("batch_id", opts.BatchID).
		Str("mode", opts.Mode.String()).
		Int("rows", len(items)).
		Bool("multi_account", registry.MultiAccount())
	if registry.MultiAccount() {
		start = start.Int("accounts", registry.Len())
	}
	start.Msg("Starting batch")

	for _, item := range items {
		if isCancelled(ctx, opts.Cancelled) {
			table.Cancelled = true
			emit(opts.Log, fmt.Sprintf("⛔ Đã hủy. Đã xử lý %d/%d dòng.", len(table.Rows), len(items)))
			log.Info().
				Str("batch_id", opts.BatchID).
				Int("processed", len(table.Rows)).
				Int("total", len(items)).
				Msg("Batch cancelled")
			break
		}

		row := r.processItem(ctx, item, registry, deleteMode)
		table.Rows = append(table.Rows, row)
		emit(opts.Log, formatRowLine(row))
		if opts.Progress != nil {
			opts.Progress(len(table.Rows), len(items))
		}
	}

	table.FinishedAt = time.Now()
	counts := table.Counts()
	log.Info().
		Str("batch_id", opts.BatchID).
		Int("processed", len(table.Rows)).
		Int("success", counts[model.OutcomeSuccess]).
		Int("account_not_found", counts[model.OutcomeAccountNotFound]).
		Int("id_not_found", counts[model.OutcomeIDNotFound]).
		Int("errors", counts[model.OutcomeError]).
		Bool("cancelled", table.Cancelled).
		Dur("elapsed", table.FinishedAt.Sub(table.StartedAt)).
		Msg("Batch finished")

	return table
}

func (r *Runner) processItem(ctx context.Context, item model.WorkItem, registry *accounts.Registry, deleteMode bool) model.ResultRow {
	row := model.ResultRow{
		Seq:  item.Seq,
		URL:  item.URL,
		Site: item.Site,
		Type: item.Type,
	}

	acct, ok := registry.Lookup(item.Site)
	if !ok {
		log.Info().Int("row", item.Seq).Str("site", item.Site).Msg("Account not found")
		row.Outcome = model.AccountNotFound()
		return row
	}

	entity, ok := r.resolver.Resolve(ctx, item.URL, item.Type, acct)
	if !ok {
		log.Info().Int("row", item.Seq).Str("url", item.URL).Str("type", item.Type.String()).Msg("Entity not found")
		row.Outcome = model.IDNotFound()
		return row
	}
	row.EntityID = entity.ID
	row.Type = entity.Type

	result, err := r.patcher.Apply(ctx, entity, item.Schema, deleteMode)
	if err != nil {
		log.Warn().Err(err).Int("row", item.Seq).Int("id", entity.ID).Str("type", entity.Type.String()).Msg("Patch failed")
		row.Outcome = model.Failed(err.Error())
		return row
	}

	log.Info().
		Int("row", item.Seq).
		Int("id", entity.ID).
		Str("type", entity.Type.String()).
		Bool("changed", result.Changed).
		Int("added_lines", result.AddedLines).
		Int("removed_lines", result.RemovedLines).
		Msg("Updated schema")
	row.Outcome = model.Success()
	row.Changed = result.Changed
	row.AddedLines = result.AddedLines
	row.RemovedLines = result.RemovedLines
	return row
}

func isCancelled(ctx context.Context, cancelled func() bool) bool {
	if ctx.Err() != nil {
		return true
	}
	return cancelled != nil && cancelled()
}

func emit(sink func(string), line string) {
	if sink == nil {
		return
	}
	sink(line)
}

func formatRowLine(row model.ResultRow) string {
	target := row.URL
	if row.Site != "" {
		target = fmt.Sprintf("[%s] %s", row.Site, row.URL)
	}
	mark := "✅"
	if row.Outcome.Kind != model.OutcomeSuccess {
		mark = "❌"
	}
	line := fmt.Sprintf("%s %d. %s → %s", mark, row.Seq, target, row.Outcome)
	if change := row.ChangeText(); change != "" {
		line += " (" + change + ")"
	}
	return line
}
