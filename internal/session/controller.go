package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/notifications"
	"wp_schema_sync/internal/processing"
	"wp_schema_sync/internal/resolution"
	"wp_schema_sync/internal/wordpress"
	"wp_schema_sync/internal/workbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrBusy means the user already has a batch running.
var ErrBusy = errors.New("a batch is already running")

// User-facing chat texts.
const (
	textHelp = "Lệnh:\n" +
		"/insert - thêm schema (gửi file Excel sau lệnh)\n" +
		"/delete - xóa schema (gửi file Excel sau lệnh)\n" +
		"/cancel - hủy tác vụ đang chạy\n" +
		"/status - xem tiến độ"
	textBusy           = "⚠️ Đang có tác vụ chạy. Dùng /cancel để hủy."
	textUploadPrompt   = "📎 Gửi file Excel (.xlsx) cho chế độ %s trong %s."
	textNoPending      = "Gửi /insert hoặc /delete trước khi gửi file."
	textNotXLSX        = "❌ Chỉ nhận file .xlsx."
	textStarted        = "🚀 Bắt đầu xử lý %d dòng (%s)."
	textCancelling     = "⏳ Đang hủy, sẽ dừng sau dòng hiện tại."
	textNothingRunning = "Không có tác vụ nào đang chạy."
	textStatus         = "🔄 Đang chạy (%s): %d/%d dòng."
	textInputError     = "❌ File không hợp lệ: %v"
	textUnexpected     = "❌ Lỗi không mong muốn: %v"
)

// Replier delivers messages to one conversation.
type Replier interface {
	Text(ctx context.Context, text string) error
	Document(ctx context.Context, filename string, data []byte, caption string) error
}

// Options configures a Controller.
type Options struct {
	// Fallback is the account used by single-account sheets; nil requires an accounts sheet.
	Fallback     *model.Account
	HTTPTimeout  time.Duration
	UploadWindow time.Duration
	Notifier     *notifications.Client
}

// Controller maps chat commands and uploads to batch runs. It keeps no state
// of its own; per-user state lives in the Store.
type Controller struct {
	store        Store
	fallback     *model.Account
	httpTimeout  time.Duration
	uploadWindow time.Duration
	notifier     *notifications.Client
	now          func() time.Time
}

func NewController(store Store, opts Options) *Controller {
	window := opts.UploadWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Controller{
		store:        store,
		fallback:     opts.Fallback,
		httpTimeout:  opts.HTTPTimeout,
		uploadWindow: window,
		notifier:     opts.Notifier,
		now:          time.Now,
	}
}

// HandleCommand answers one chat command. Unknown commands get the help text.
func (c *Controller) HandleCommand(ctx context.Context, userID, command string, r Replier) error {
	name := ""
	if fields := strings.Fields(command); len(fields) > 0 {
		name = strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	}
	// "/insert@MyBot" in group chats
	name, _, _ = strings.Cut(name, "@")

	log.Debug().Str("user", userID).Str("command", name).Msg("Handling command")

	switch name {
	case "insert", "add":
		return c.requestUpload(ctx, userID, model.ModeInsert, r)
	case "delete", "clear":
		return c.requestUpload(ctx, userID, model.ModeDelete, r)
	case "cancel":
		return c.cancel(ctx, userID, r)
	case "status":
		return c.status(ctx, userID, r)
	default:
		return r.Text(ctx, textHelp)
	}
}

func (c *Controller) requestUpload(ctx context.Context, userID string, mode model.Mode, r Replier) error {
	if _, running := c.store.Active(userID); running {
		return r.Text(ctx, textBusy)
	}
	c.store.SetPending(userID, mode, c.now().Add(c.uploadWindow))
	return r.Text(ctx, fmt.Sprintf(textUploadPrompt, mode, c.uploadWindow))
}

// Cancel sets the cancel flag of the user's running batch. The batch stops
// before its next row.
func (c *Controller) Cancel(userID string) bool {
	task, ok := c.store.Active(userID)
	if !ok {
		return false
	}
	task.Cancel()
	log.Info().Str("user", userID).Str("batch_id", task.ID).Msg("Cancel requested")
	return true
}

func (c *Controller) cancel(ctx context.Context, userID string, r Replier) error {
	if !c.Cancel(userID) {
		return r.Text(ctx, textNothingRunning)
	}
	return r.Text(ctx, textCancelling)
}

func (c *Controller) status(ctx context.Context, userID string, r Replier) error {
	task, ok := c.store.Active(userID)
	if !ok {
		return r.Text(ctx, textNothingRunning)
	}
	done, total := task.Progress()
	return r.Text(ctx, fmt.Sprintf(textStatus, task.Mode, done, total))
}

// HandleUpload starts a batch from an uploaded workbook if the user asked for
// one within the upload window. The batch runs in the background.
func (c *Controller) HandleUpload(ctx context.Context, userID, filename string, data []byte, r Replier) error {
	mode, ok := c.store.TakePending(userID, c.now())
	if !ok {
		return r.Text(ctx, textNoPending)
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return r.Text(ctx, textNotXLSX)
	}

	batch, err := c.ParseUpload(data, mode)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Str("file", filename).Msg("Rejected upload")
		return r.Text(ctx, fmt.Sprintf(textInputError, err))
	}

	_, err = c.StartBatch(ctx, userID, mode, batch, r, "telegram:"+userID)
	if errors.Is(err, ErrBusy) {
		return r.Text(ctx, textBusy)
	}
	return err
}

// ParseUpload reads an xlsx upload into a batch.
func (c *Controller) ParseUpload(data []byte, mode model.Mode) (*workbook.Batch, error) {
	tables, err := workbook.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return workbook.ParseBatch(tables, mode, c.fallback)
}

// StartBatch claims the user's slot and runs the batch in a goroutine.
func (c *Controller) StartBatch(ctx context.Context, userID string, mode model.Mode, batch *workbook.Batch, r Replier, source string) (*Task, error) {
	task, err := c.begin(userID, mode)
	if err != nil {
		return nil, err
	}
	go c.run(ctx, task, batch, r, source)
	return task, nil
}

// RunBatch claims the user's slot and runs the batch on the calling goroutine.
func (c *Controller) RunBatch(ctx context.Context, userID string, mode model.Mode, batch *workbook.Batch, r Replier, source string) (*model.ResultTable, error) {
	task, err := c.begin(userID, mode)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, task, batch, r, source)
}

func (c *Controller) begin(userID string, mode model.Mode) (*Task, error) {
	task := newTask(uuid.NewString(), userID, mode, c.now())
	if !c.store.TryStart(task) {
		return nil, ErrBusy
	}
	return task, nil
}

// run executes the batch and always releases the user's slot, even when the
// batch panics.
func (c *Controller) run(ctx context.Context, task *Task, batch *workbook.Batch, r Replier, source string) (table *model.ResultTable, err error) {
	// replies must still go out when ctx is cancelled mid-batch
	replyCtx := context.WithoutCancel(ctx)

	defer c.store.Finish(task)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("batch_id", task.ID).
				Str("user", task.UserID).
				Msg("Batch panicked")
			err = fmt.Errorf("batch panicked: %v", rec)
			table = nil
			if replyErr := r.Text(replyCtx, fmt.Sprintf(textUnexpected, rec)); replyErr != nil {
				log.Warn().Err(replyErr).Msg("Failed to report panic")
			}
		}
	}()

	client := wordpress.NewClient(c.httpTimeout)
	runner := processing.NewRunner(resolution.NewResolver(client), processing.NewPatcher(client))

	c.reply(replyCtx, r, fmt.Sprintf(textStarted, len(batch.Items), task.Mode))

	table = runner.Run(ctx, batch.Items, batch.Registry, processing.RunOptions{
		BatchID:   task.ID,
		Mode:      task.Mode,
		Log:       func(line string) { c.reply(replyCtx, r, line) },
		Cancelled: task.Cancelled,
		Progress:  task.setProgress,
	})
	table.APICalls = client.GetAPICallCount()

	summary := FormatSummary(table)
	data, err := workbook.Bytes(table)
	if err != nil {
		c.reply(replyCtx, r, summary)
		return table, fmt.Errorf("failed to render result workbook: %w", err)
	}
	if err := r.Document(replyCtx, ResultFilename(table), data, summary); err != nil {
		log.Warn().Err(err).Str("batch_id", task.ID).Msg("Failed to deliver result workbook")
		c.reply(replyCtx, r, summary)
	}

	c.notifier.NotifyBatchFinished(replyCtx, table, source)
	return table, nil
}

func (c *Controller) reply(ctx context.Context, r Replier, text string) {
	if err := r.Text(ctx, text); err != nil {
		log.Warn().Err(err).Msg("Failed to send reply")
	}
}

// FormatSummary renders the final chat message of a batch.
func FormatSummary(table *model.ResultTable) string {
	var sb strings.Builder
	if table.Cancelled {
		sb.WriteString("⛔ Tác vụ đã bị hủy.\n")
	} else {
		sb.WriteString("✅ Hoàn tất.\n")
	}
	sb.WriteString("📊 Kết quả:\n")
	for _, item := range table.Summary() {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", item.Label, item.Value))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ResultFilename names the result workbook of a batch.
func ResultFilename(table *model.ResultTable) string {
	id := table.BatchID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("result_%s_%s.xlsx", table.Mode, id)
}
