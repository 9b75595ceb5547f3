package llm

import (
	"fmt"
	"strings"
)

// BuildTranslatorPrompt returns the system instruction for turning a question into a placeholder query
// against table.
func BuildTranslatorPrompt(table string) string {
	return fmt.Sprintf(`Ты программист на SQL. По вопросу пользователя ты строишь ровно один SQL-запрос SELECT к таблице %[1]s.

ПРАВИЛА:
1. Разрезы аналитики (GROUP BY, WHERE) бери ТОЛЬКО из измерений inventory, значения фильтров - только из inventory[<измерение>].values.
2. Агрегируемые показатели бери ТОЛЬКО из knowledge_base.atomic и knowledge_base.derived. Не придумывай метрики.
3. НИКОГДА не пиши формулы метрик. Вместо формулы вставляй плейсхолдер f{<Название метрики>}, например f{Текучесть} или f{"Количество уволенных (всего)"}.
   Плейсхолдеры допустимы в SELECT, WHERE, HAVING и ORDER BY. Плейсхолдер уже содержит агрегатную функцию: не оборачивай его в SUM, AVG и т.п.
4. Все русские идентификаторы заключай в двойные кавычки.
5. Если запрошен разрез - добавь его и в SELECT, и в GROUP BY.
6. Фильтры по измерениям применяй только если значение однозначно найдено в inventory. Если не нашёл - не строй запрос, а объясни это.
7. Если history позволяет однозначно и полностью ответить на вопрос, не строй запрос, а ответь по истории.

ФОРМАТ ОТВЕТА - только JSON-объект:
- запрос построен: {"success": "1", "answer": "<SQL-запрос>"}
- запрос построить нельзя: {"success": "0", "answer": "<объяснение человеческим языком, без технических деталей, с вариантами из knowledge_base и inventory>"}
- ответ по истории: {"success": "2", "answer": "<ответ на основе history>"}`, table)
}

// BuildSummaryPrompt returns the system instruction for the final natural-language answer.
func BuildSummaryPrompt() string {
	return `Ты аналитик HR-данных. Пиши ясно, кратко и приветливо, без технических подробностей.
Опирайся строго на поля payload: question, sql_text_raw, sql_text_expanded, columns, rows_preview, rows_count, inventory.
Обязательно назови метрику, которую ты рассчитал для ответа.
Проверь покрытие по времени: если пользователь спрашивал про год или период, а inventory["Месяц"].values содержит только часть месяцев, сообщи фактический диапазон месяцев и это ограничение.`
}

// summaryInstruction is embedded in the summary payload itself.
var summaryInstruction = strings.Join([]string{
	"Ответь на естественном русском языке, кратко и по делу.",
	"Учитывай исходный вопрос, текст запроса до и после подстановки метрик, полученные данные (превью и размер) и inventory.",
	"Если inventory['Месяц']['values'] покрывает не все месяцы запрошенного периода, укажи фактический диапазон и что расчёт сделан только по нему.",
	"Ничего не выдумывай и не добавляй несуществующие периоды или значения.",
	"Доли показывай в процентах с двумя знаками после запятой.",
	"Если данных недостаточно для точного ответа, прямо скажи, чего не хватает.",
}, " ")

// Example is a few-shot translation example.
type Example struct {
	Ask    string        `json:"ask"`
	Answer ExampleAnswer `json:"answer"`
}

// ExampleAnswer is the expected translator response of an Example.
type ExampleAnswer struct {
	Success string `json:"success"`
	Message string `json:"message"`
}

// translatorExamples returns the few-shot examples for table, listing dims in the refusal example.
func translatorExamples(table string, dims []string) []Example {
	return []Example{
		{
			Ask: "Текучесть по БЕ за 2025-05",
			Answer: ExampleAnswer{
				Success: "1",
				Message: `SELECT "БЕ", f{Текучесть} AS "Текучесть" FROM ` + table +
					` WHERE "Месяц" IN ('Май') AND "Год" IN ('2025') GROUP BY "БЕ";`,
			},
		},
		{
			Ask: "Какая численность и отток по БЕ за 2025 год",
			Answer: ExampleAnswer{
				Success: "1",
				Message: `SELECT "БЕ", f{"Фактическая средняя численность"} AS "Фактическая средняя численность", f{Отток} AS "Отток" FROM ` + table +
					` WHERE "Год" IN ('2025') GROUP BY "БЕ";`,
			},
		},
		{
			Ask: "Какая текучесть по прокатному цеху 103 за 2024 год",
			Answer: ExampleAnswer{
				Success: "0",
				Message: "Извините, у меня нет данных по прокатному цеху 103. Я могу показать показатели в разрезах: " +
					strings.Join(dims, ", ") + ".",
			},
		},
		{
			Ask: "Как в прошлом ответе была посчитана метрика?",
			Answer: ExampleAnswer{
				Success: "2",
				Message: `В предыдущем ответе я рассчитал отток: SUM("Количество уволенных (для оттока, без стажеров)") / SUM("Фактическая среднесписочная численность").`,
			},
		},
	}
}
