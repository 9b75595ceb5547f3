package placeholder

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
	"github.com/stretchr/testify/require"
)

func defaultExpander(t *testing.T) *Expander {
	t.Helper()
	r, err := registry.Default()
	require.NoError(t, err)
	return New(r.Atomic(), r.DerivedFormulas())
}

func TestExpand_AtomicMetrics(t *testing.T) {
	r := registry.MustDefault()
	e := New(r.Atomic(), r.DerivedFormulas())

	for _, m := range r.Atomic() {
		for _, in := range []string{"f{" + m + "}", `f{"` + m + `"}`, `f{ "` + m + `" }`} {
			got, err := e.Expand(in)
			require.NoError(t, err, in)
			require.Equal(t, `SUM("`+m+`")`, got, in)
		}
	}
}

func TestExpand_DerivedMetrics(t *testing.T) {
	r := registry.MustDefault()
	e := New(r.Atomic(), r.DerivedFormulas())

	for _, d := range r.Derived() {
		for _, in := range []string{"f{" + d.Name + "}", `f{"` + d.Name + `"}`} {
			got, err := e.Expand(in)
			require.NoError(t, err, in)
			require.Equal(t, "("+d.Formula+")", got, in)
		}
	}
}

func TestExpand_TurnoverByBusinessUnit(t *testing.T) {
	e := defaultExpander(t)

	got, err := e.Expand(`SELECT "БЕ", f{Текучесть} AS "Текучесть" FROM hr_facts GROUP BY "БЕ";`)
	require.NoError(t, err)
	require.Equal(t,
		`SELECT "БЕ", (SUM("Количество уволенных (нежелательно, без стажеров)") / SUM("Фактическая среднесписочная численность")) AS "Текучесть" FROM hr_facts GROUP BY "БЕ";`,
		got)
}

func TestExpand_MultiplePlaceholders(t *testing.T) {
	e := defaultExpander(t)

	in := `SELECT "БЕ", f{"Фактическая средняя численность"} AS "Ч", f{Отток} AS "О" FROM hr_facts WHERE "Год" IN ('2025') GROUP BY "БЕ" ORDER BY f{Отток} DESC`
	got, err := e.Expand(in)
	require.NoError(t, err)
	require.NotContains(t, got, "f{")
	require.Contains(t, got, `(SUM("Фактическая средняя численность") / NULLIF(COUNT(DISTINCT ("Месяц")), 0)) AS "Ч"`)
	require.Contains(t, got, `ORDER BY (SUM("Количество уволенных (для оттока, без стажеров)") / SUM("Фактическая среднесписочная численность")) DESC`)
}

func TestExpand_WhitespaceNormalization(t *testing.T) {
	e := defaultExpander(t)

	got, err := e.Expand("f{\"Количество   уволенных\t(всего)\"}")
	require.NoError(t, err)
	require.Equal(t, `SUM("Количество уволенных (всего)")`, got)

	got, err = e.Expand(`f{  Отток  }`)
	require.NoError(t, err)
	require.Equal(t, `(SUM("Количество уволенных (для оттока, без стажеров)") / SUM("Фактическая среднесписочная численность"))`, got)
}

func TestExpand_DerivedWinsOverAtomic(t *testing.T) {
	e := New([]string{"Численность"}, map[string]string{"Численность": `AVG("Численность")`})

	got, err := e.Expand("f{Численность}")
	require.NoError(t, err)
	require.Equal(t, `(AVG("Численность"))`, got)

	e = New([]string{"Численность сотрудников"}, map[string]string{"Численность сотрудников": `AVG("Численность")`})
	got, err = e.Expand("f{Численность   сотрудников}")
	require.NoError(t, err)
	require.Equal(t, `(AVG("Численность"))`, got)
}

func TestExpand_UnknownMetric(t *testing.T) {
	e := defaultExpander(t)

	queries := map[string]string{
		"select": `SELECT f{НеизвестнаяМетрика} FROM hr_facts`,
		"where":  `SELECT "БЕ" FROM hr_facts WHERE f{НеизвестнаяМетрика} > 0 GROUP BY "БЕ"`,
		"having": `SELECT "БЕ", f{Отток} FROM hr_facts GROUP BY "БЕ" HAVING f{"НеизвестнаяМетрика"} > 0`,
	}
	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			got, err := e.Expand(q)
			require.Empty(t, got)

			var unknown *UnknownMetricError
			require.True(t, errors.As(err, &unknown))
			require.Equal(t, "НеизвестнаяМетрика", unknown.Name)
			require.Len(t, unknown.Atomic, 3)
			require.Len(t, unknown.Derived, 14)
			require.Contains(t, err.Error(), "Текучесть")
			require.Contains(t, err.Error(), "Количество уволенных (всего)")
		})
	}
}

func TestExpand_NoPlaceholdersUnchanged(t *testing.T) {
	e := defaultExpander(t)

	for _, q := range []string{
		"",
		`SELECT "БЕ", COUNT(*) FROM hr_facts GROUP BY "БЕ"`,
		`SELECT 'f{' || 'x' AS s`,
		`SELECT "f" FROM hr_facts`,
	} {
		got, err := e.Expand(q)
		require.NoError(t, err)
		require.Equal(t, q, got)
	}
}

func TestExpand_SinglePass(t *testing.T) {
	e := New(nil, map[string]string{"a": "f{b}", "b": "1"})

	got, err := e.Expand("SELECT f{a}")
	require.NoError(t, err)
	require.Equal(t, "SELECT (f{b})", got)
}

func TestExpand_PackageFunction(t *testing.T) {
	got, err := Expand("SELECT f{x}, f{y}", []string{"x"}, map[string]string{"y": `SUM("a") / SUM("b")`})
	require.NoError(t, err)
	require.Equal(t, `SELECT SUM("x"), (SUM("a") / SUM("b"))`, got)
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t,
		[]string{"Текучесть", "Количество уволенных (всего)"},
		Placeholders(`SELECT f{Текучесть}, f{ "Количество уволенных (всего)" } FROM hr_facts`))
	require.Empty(t, Placeholders("SELECT 1"))
}
