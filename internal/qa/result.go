package qa

import (
	"encoding/json"
)

// Mode tells which stage produced a Result.
type Mode string

const (
	ModeTextOnly  Mode = "text_only"
	ModePrepError Mode = "prep_error"
	ModeExecError Mode = "exec_error"
	ModeOK        Mode = "ok"
)

// User-facing messages. The %v verb receives the underlying error.
const (
	MessageNotConfigured   = "Языковая модель не настроена."
	MessageTranslateFailed = "Не удалось получить ответ от LLM. Ошибка: %v"
	MessagePrepFailed      = "Не удалось подготовить SQL: %v"
	MessageExecFailed      = "Не удалось выполнить SQL. Ошибка: %v"
	MessageSummaryFailed   = "Не удалось получить финальный ответ от LLM. Ошибка: %v"
)

// Result is the answer to one Question.
type Result struct {
	RequestID     string
	Mode          Mode
	Success       string
	Answer        string
	RawQuery      string
	ExpandedQuery string
	Columns       []string
	RowCount      int
	Preview       []map[string]any
}

type wireResult struct {
	Mode          Mode              `json:"mode"`
	Success       string            `json:"success"`
	Answer        string            `json:"answer"`
	RawQuery      *string           `json:"sql_text_raw,omitempty"`
	ExpandedQuery *string           `json:"sql_text_expanded,omitempty"`
	Columns       *[]string         `json:"columns,omitempty"`
	RowCount      *int              `json:"rows_count,omitempty"`
	Preview       *[]map[string]any `json:"rows_preview,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
}

// MarshalJSON emits only the fields that belong to the result's mode.
func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		Mode:      r.Mode,
		Success:   r.Success,
		Answer:    r.Answer,
		RequestID: r.RequestID,
	}
	switch r.Mode {
	case ModePrepError:
		w.RawQuery = &r.RawQuery
	case ModeExecError:
		w.RawQuery = &r.RawQuery
		w.ExpandedQuery = &r.ExpandedQuery
	case ModeOK:
		w.RawQuery = &r.RawQuery
		w.ExpandedQuery = &r.ExpandedQuery
		columns, preview := r.Columns, r.Preview
		if columns == nil {
			columns = []string{}
		}
		if preview == nil {
			preview = []map[string]any{}
		}
		w.Columns = &columns
		w.RowCount = &r.RowCount
		w.Preview = &preview
	}
	return json.Marshal(w)
}
