package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	tbl, err := dataset.FromRecords([][]string{
		{"БЕ", "Год", "Численность", "Увольнения", "Часы"},
		{"БЕ-1", "2025", "100", "3", "1.5"},
		{"БЕ-1", "2024", "80", "2", "2"},
		{"БЕ-2", "2025", "50", "5", ""},
	})
	require.NoError(t, err)

	e, err := Open(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), tbl)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_Execute(t *testing.T) {
	e := testEngine(t)
	require.Equal(t, 3, e.RowCount())

	rs, err := e.Execute(context.Background(),
		`SELECT "БЕ", SUM("Численность") AS n, COUNT(*) AS c FROM hr_facts GROUP BY "БЕ" ORDER BY "БЕ"`, "hr_facts")
	require.NoError(t, err)
	require.Equal(t, []string{"БЕ", "n", "c"}, rs.Columns)
	require.Equal(t, [][]any{
		{"БЕ-1", int64(180), int64(2)},
		{"БЕ-2", int64(50), int64(1)},
	}, rs.Rows)
	require.Equal(t, 2, rs.Count())
}

func TestEngine_ExecuteNullsAndDoubles(t *testing.T) {
	e := testEngine(t)

	rs, err := e.Execute(context.Background(),
		`SELECT "Часы" FROM hr_facts ORDER BY "Численность" DESC`, "hr_facts")
	require.NoError(t, err)
	require.Equal(t, [][]any{{1.5}, {2.0}, {nil}}, rs.Rows)
}

func TestEngine_ExecuteEmptyResult(t *testing.T) {
	e := testEngine(t)

	rs, err := e.Execute(context.Background(), `SELECT "БЕ" FROM hr_facts WHERE "Год" = 1990`, "hr_facts")
	require.NoError(t, err)
	require.Equal(t, []string{"БЕ"}, rs.Columns)
	require.NotNil(t, rs.Rows)
	require.Empty(t, rs.Rows)
}

func TestEngine_ExecuteError(t *testing.T) {
	e := testEngine(t)

	query := `SELECT "Нет такой колонки" FROM hr_facts`
	_, err := e.Execute(context.Background(), query, "hr_facts")
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	require.Equal(t, query, execErr.Query)
	require.Equal(t, execErr.Err.Error(), err.Error())
}

func TestEngine_SessionsAreIsolated(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, `SELECT COUNT(*) FROM first_name`, "first_name")
	require.NoError(t, err)

	// The view registered for the previous session must be gone.
	_, err = e.Execute(ctx, `SELECT COUNT(*) FROM first_name`, "second_name")
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))

	// A failed query leaves the next session unaffected.
	rs, err := e.Execute(ctx, `SELECT COUNT(*) AS c FROM second_name`, "second_name")
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(3)}}, rs.Rows)
}

func TestEngine_StackedStatementsCannotEscapeSession(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	for _, query := range []string{
		"SELECT 1 -- it's\n; COMMIT; DROP TABLE \"__dataset\"; SELECT 2 -- '",
		`SELECT 1; COMMIT; DROP TABLE "__dataset"`,
	} {
		_, err := e.Execute(ctx, query, "hr_facts")
		var execErr *ExecutionError
		require.True(t, errors.As(err, &execErr), "query %q: %v", query, err)
	}

	rs, err := e.Execute(ctx, `SELECT COUNT(*) AS c FROM hr_facts`, "hr_facts")
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(3)}}, rs.Rows)
}

func TestEngine_ExternalAccessDisabled(t *testing.T) {
	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "outside.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o644))

	_, err := e.Execute(context.Background(), "SELECT * FROM read_csv('"+path+"')", "hr_facts")
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))

	_, err = e.Execute(context.Background(), "SET lock_configuration = false", "hr_facts")
	require.True(t, errors.As(err, &execErr))
}

func TestEngine_ConcurrentExecute(t *testing.T) {
	e := testEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := e.Execute(context.Background(), `SELECT SUM("Увольнения") AS s FROM hr_facts`, "hr_facts")
			if err != nil {
				errs <- err
				return
			}
			if rs.Rows[0][0] != int64(10) {
				errs <- errors.New("unexpected sum")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRowSet_Preview(t *testing.T) {
	rs := &RowSet{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{int64(1), "x"}, {int64(2), nil}, {int64(3), "z"}},
	}

	require.Equal(t, []map[string]any{
		{"a": int64(1), "b": "x"},
		{"a": int64(2), "b": nil},
	}, rs.Preview(2))
	require.Len(t, rs.Preview(100), 3)
	require.Empty(t, rs.Preview(0))
}

func TestNormalizeValue(t *testing.T) {
	huge, ok := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	require.True(t, ok)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "bytes", in: []byte("abc"), want: "abc"},
		{name: "time", in: ts, want: "2025-03-01T10:00:00Z"},
		{name: "small hugeint", in: big.NewInt(42), want: int64(42)},
		{name: "large hugeint", in: huge, want: huge.String()},
		{name: "decimal", in: duckdb.Decimal{Width: 4, Scale: 2, Value: big.NewInt(150)}, want: 1.5},
		{name: "nan", in: math.NaN(), want: nil},
		{name: "inf", in: math.Inf(-1), want: nil},
		{name: "float", in: 0.25, want: 0.25},
		{name: "int", in: int64(7), want: int64(7)},
		{name: "bool", in: true, want: true},
		{name: "map", in: duckdb.Map{int32(1): []byte("a"), "k": math.NaN()}, want: map[string]any{"1": "a", "k": nil}},
		{name: "struct", in: map[string]any{"n": big.NewInt(5)}, want: map[string]any{"n": int64(5)}},
		{name: "list", in: []any{ts, nil}, want: []any{"2025-03-01T10:00:00Z", nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestEngine_ExecuteMap(t *testing.T) {
	e := testEngine(t)

	rs, err := e.Execute(context.Background(), `SELECT MAP {'БЕ-1': 1.5} AS m, [1, 2] AS l`, "hr_facts")
	require.NoError(t, err)
	require.Equal(t, [][]any{{map[string]any{"БЕ-1": 1.5}, []any{int32(1), int32(2)}}}, rs.Rows)

	_, err = json.Marshal(rs.Rows)
	require.NoError(t, err)
}

func TestValidateSelect(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		err   error
	}{
		{name: "select", query: "  SELECT 1  ", want: "SELECT 1"},
		{name: "cte", query: "with t as (select 1) select * from t", want: "with t as (select 1) select * from t"},
		{name: "trailing semicolon", query: "SELECT 1;\n", want: "SELECT 1"},
		{name: "semicolon in string", query: "SELECT 'a;b' AS s", want: "SELECT 'a;b' AS s"},
		{name: "semicolon in identifier", query: `SELECT 1 AS "a;b"`, want: `SELECT 1 AS "a;b"`},
		{name: "empty", query: "  ", err: ErrEmptyQuery},
		{name: "only semicolons", query: ";;", err: ErrEmptyQuery},
		{name: "delete", query: "DELETE FROM hr_facts", err: ErrNotSelectQuery},
		{name: "stacked statements", query: "SELECT 1; DROP TABLE hr_facts", err: ErrMultipleStatements},
		{name: "quote inside line comment", query: "SELECT 1 -- it's\n; COMMIT; DROP TABLE \"__dataset\"; SELECT 2 -- '", err: ErrMultipleStatements},
		{name: "quote inside block comment", query: "SELECT 1 /* it's */; DROP TABLE hr_facts", err: ErrMultipleStatements},
		{name: "semicolon in line comment", query: "SELECT 1 -- a; b\nFROM hr_facts", want: "SELECT 1 -- a; b\nFROM hr_facts"},
		{name: "semicolon in block comment", query: "SELECT /* a; b */ 1", want: "SELECT /* a; b */ 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSelect(tt.query)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
