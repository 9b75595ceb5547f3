package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     Outcome
		wantCode string
	}{
		{
			name:     "query",
			raw:      `{"success": "1", "answer": "SELECT f{Отток} FROM hr_facts"}`,
			want:     Outcome{Kind: KindQuery, Text: "SELECT f{Отток} FROM hr_facts"},
			wantCode: "1",
		},
		{
			name:     "query in message field",
			raw:      `{"success": "1", "message": "SELECT 1"}`,
			want:     Outcome{Kind: KindQuery, Text: "SELECT 1"},
			wantCode: "1",
		},
		{
			name:     "answer preferred over message",
			raw:      `{"success": "0", "answer": "a", "message": "m"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "a"},
			wantCode: "0",
		},
		{
			name:     "empty answer falls back to message",
			raw:      `{"success": "2", "answer": "", "message": "m"}`,
			want:     Outcome{Kind: KindHistory, Text: "m"},
			wantCode: "2",
		},
		{
			name:     "no matching dimension",
			raw:      `{"success": "0", "answer": "no matching dimension"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "no matching dimension"},
			wantCode: "0",
		},
		{
			name:     "history",
			raw:      `{"success": "2", "answer": "Отток считался так..."}`,
			want:     Outcome{Kind: KindHistory, Text: "Отток считался так..."},
			wantCode: "2",
		},
		{
			name:     "numeric success",
			raw:      `{"success": 1, "answer": "SELECT 1"}`,
			want:     Outcome{Kind: KindQuery, Text: "SELECT 1"},
			wantCode: "1",
		},
		{
			name:     "surrounding prose and fences",
			raw:      "Вот ответ:\n```json\n{\"success\": \"1\", \"answer\": \"SELECT 1\"}\n```\nГотово.",
			want:     Outcome{Kind: KindQuery, Text: "SELECT 1"},
			wantCode: "1",
		},
		{
			name:     "missing fields",
			raw:      `{}`,
			want:     Outcome{Kind: KindTextOnly, Text: MessageNoQuery},
			wantCode: "0",
		},
		{
			name:     "fractional success",
			raw:      `{"success": 1.0, "answer": "SELECT 1"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "SELECT 1"},
			wantCode: "0",
		},
		{
			name:     "padded success",
			raw:      `{"success": " 1", "answer": "SELECT 1"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "SELECT 1"},
			wantCode: "0",
		},
		{
			name:     "null success",
			raw:      `{"success": null, "answer": "x"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "x"},
			wantCode: "0",
		},
		{
			name:     "unrecognized success",
			raw:      `{"success": "7", "answer": "x"}`,
			want:     Outcome{Kind: KindTextOnly, Text: "x"},
			wantCode: "0",
		},
		{
			name:     "prose only",
			raw:      "Я не понимаю вопрос.",
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
		{
			name:     "broken json",
			raw:      `{"success": "1", "answer": "SELECT}`,
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
		{
			name:     "json array",
			raw:      `["success", "1"]`,
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
		{
			name:     "json null",
			raw:      `null`,
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
		{
			name:     "empty",
			raw:      "",
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
		{
			name:     "closing brace before opening",
			raw:      `} {"success": "1"`,
			want:     Outcome{Kind: KindTextOnly, Text: MessageUnparsable, Malformed: true},
			wantCode: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Outcome
			require.NotPanics(t, func() { got = Classify(tt.raw) })
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantCode, got.Kind.Code())
		})
	}
}

func TestOutcome_Query(t *testing.T) {
	o := Classify("{\"success\": \"1\", \"answer\": \"```sql\\nSELECT f{Отток} FROM hr_facts\\n```\"}")
	require.Equal(t, KindQuery, o.Kind)
	require.Equal(t, "SELECT f{Отток} FROM hr_facts", o.Query())
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fences", in: "SELECT 1", want: "SELECT 1"},
		{name: "sql fence", in: "```sql\nSELECT 1\n```", want: "SELECT 1"},
		{name: "upper-case sql fence", in: "```SQL SELECT 1```", want: "SELECT 1"},
		{name: "bare fence", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "leading only", in: "```sql\nSELECT 1", want: "SELECT 1"},
		{name: "trailing only", in: "SELECT 1\n```", want: "SELECT 1"},
		{name: "only one pair removed", in: "```sql\n```sql\nSELECT 1\n```\n```", want: "```sql\nSELECT 1\n```"},
		{name: "surrounding whitespace", in: "  \n```sql\nSELECT 1\n```  \n", want: "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestStripCodeFences_Idempotent(t *testing.T) {
	for _, s := range []string{"SELECT 1", `SELECT "БЕ", f{Отток} FROM hr_facts GROUP BY "БЕ"`, "```sql\nSELECT 1\n```"} {
		once := StripCodeFences(s)
		require.Equal(t, once, StripCodeFences(once))
	}
}
