package model

import (
	"fmt"
	"strconv"
	"time"
)

// OutcomeKind is the terminal state of a processed row.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAccountNotFound
	OutcomeIDNotFound
	OutcomeError
	OutcomeCancelled
)

// Result strings shown to users in chat and in the result spreadsheet.
const (
	TextSuccess         = "Thành công"
	TextAccountNotFound = "Không tìm thấy tài khoản"
	TextIDNotFound      = "Không tìm thấy ID"
	TextErrorPrefix     = "Lỗi: "
	TextCancelled       = "Đã hủy"
	// TextCleared marks a delete whose previous value was never read.
	TextCleared = "đã xóa"
)

// Outcome is the result tag of a row plus error detail when Kind is OutcomeError.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return TextSuccess
	case OutcomeAccountNotFound:
		return TextAccountNotFound
	case OutcomeIDNotFound:
		return TextIDNotFound
	case OutcomeCancelled:
		return TextCancelled
	default:
		return TextErrorPrefix + o.Detail
	}
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func AccountNotFound() Outcome { return Outcome{Kind: OutcomeAccountNotFound} }

func IDNotFound() Outcome { return Outcome{Kind: OutcomeIDNotFound} }

func Failed(detail string) Outcome { return Outcome{Kind: OutcomeError, Detail: detail} }

// ResultRow is appended once per processed work item and never modified.
type ResultRow struct {
	Seq      int
	URL      string
	Site     string
	Type     ContentType
	EntityID int
	Outcome  Outcome
	// Changed is false when the stored schema already contained the fragment.
	Changed bool
	// Line counts of the write, set on success only.
	AddedLines   int
	RemovedLines int
}

// ChangeText renders the line counts of a successful write as "+a/-r".
// Rows that wrote nothing have no change text.
func (r ResultRow) ChangeText() string {
	if r.Outcome.Kind != OutcomeSuccess {
		return ""
	}
	if r.Changed && r.AddedLines == 0 && r.RemovedLines == 0 {
		return TextCleared
	}
	return fmt.Sprintf("+%d/-%d", r.AddedLines, r.RemovedLines)
}

// ResultTable is what a batch run returns, whether it finished or was cancelled.
type ResultTable struct {
	BatchID    string
	Mode       Mode
	Rows       []ResultRow
	Total      int
	Cancelled  bool
	APICalls   int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Counts tallies rows per outcome kind.
func (t *ResultTable) Counts() map[OutcomeKind]int {
	counts := make(map[OutcomeKind]int)
	for _, row := range t.Rows {
		counts[row.Outcome.Kind]++
	}
	return counts
}

// HasSites reports whether any row carries a site key.
func (t *ResultTable) HasSites() bool {
	for _, row := range t.Rows {
		if row.Site != "" {
			return true
		}
	}
	return false
}

// SummaryItem is one labelled figure of a batch summary.
type SummaryItem struct {
	Label string
	Value string
}

// Summary lists the batch figures shown in the final chat message and the
// summary sheet, in display order.
func (t *ResultTable) Summary() []SummaryItem {
	counts := t.Counts()
	cancelled := "Không"
	if t.Cancelled {
		cancelled = "Có"
	}
	return []SummaryItem{
		{Label: "Chế độ", Value: t.Mode.String()},
		{Label: "Tổng số dòng", Value: strconv.Itoa(t.Total)},
		{Label: "Đã xử lý", Value: strconv.Itoa(len(t.Rows))},
		{Label: TextSuccess, Value: strconv.Itoa(counts[OutcomeSuccess])},
		{Label: TextAccountNotFound, Value: strconv.Itoa(counts[OutcomeAccountNotFound])},
		{Label: TextIDNotFound, Value: strconv.Itoa(counts[OutcomeIDNotFound])},
		{Label: "Lỗi", Value: strconv.Itoa(counts[OutcomeError])},
		{Label: TextCancelled, Value: cancelled},
		{Label: "Số lần gọi API", Value: strconv.FormatInt(t.APICalls, 10)},
	}
}
