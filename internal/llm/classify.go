package llm

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the three outcomes of a translation.
type Kind int

const (
	// KindTextOnly is a clarification or explanation; nothing is executed.
	KindTextOnly Kind = iota
	// KindQuery carries a placeholder-bearing query candidate.
	KindQuery
	// KindHistory is an answer taken from the conversation history.
	KindHistory
)

// Code returns the wire success code of the kind.
func (k Kind) Code() string {
	switch k {
	case KindQuery:
		return "1"
	case KindHistory:
		return "2"
	default:
		return "0"
	}
}

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindHistory:
		return "history"
	default:
		return "text_only"
	}
}

// User-facing fallbacks.
const (
	MessageUnparsable = "Не удалось распарсить JSON из ответа модели."
	MessageNoQuery    = "Модель не смогла сформировать SQL."
)

// Outcome is the classified translator response.
type Outcome struct {
	Kind Kind
	Text string

	// Malformed is set when the response held no parseable JSON object.
	Malformed bool
}

// Query returns the candidate query with code fences removed.
func (o Outcome) Query() string {
	return StripCodeFences(o.Text)
}

// Classify turns raw translator text into an Outcome. It never fails: anything it cannot
// read becomes a text-only outcome.
func Classify(raw string) Outcome {
	obj, err := decodeObject(extractJSONObject(raw))
	if err != nil || obj == nil {
		return Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true}
	}

	// success is compared verbatim: " 1" and 1.0 are not "1".
	success := "0"
	if v, ok := obj["success"]; ok && v != nil {
		success = stringify(v)
	}
	text := stringify(obj["answer"])
	if text == "" {
		text = stringify(obj["message"])
	}

	switch success {
	case "1":
		return Outcome{Kind: KindQuery, Text: text}
	case "2":
		if text == "" {
			text = MessageNoQuery
		}
		return Outcome{Kind: KindHistory, Text: text}
	default:
		if text == "" {
			text = MessageNoQuery
		}
		return Outcome{Kind: KindTextOnly, Text: text}
	}
}

// decodeObject keeps numbers as written so that 1 and 1.0 stay distinct.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

// extractJSONObject returns the text from the first '{' to the last '}', or s itself
// when there is no such span.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

var (
	leadingFence  = regexp.MustCompile("(?i)^\\s*```(?:sql)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```\\s*$")
)

// StripCodeFences removes one leading ``` or ```sql marker and one trailing ``` marker.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	t = leadingFence.ReplaceAllString(t, "")
	t = trailingFence.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}
