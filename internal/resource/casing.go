package resource

import (
	"strings"
	"unicode"
)

// ⭐ SSOT: wire(camelCase) ↔ local(snake_case) 변환은 여기서만

// SnakeToCamel converts include_transaction_costs to includeTransactionCosts.
// The first word is lowercased, each following word is title-cased.
func SnakeToCamel(name string) string {
	words := strings.Split(name, "_")
	var b strings.Builder
	b.Grow(len(name))

	for i, w := range words {
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		if i == 0 {
			b.WriteString(lower)
			continue
		}
		r := []rune(lower)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// CamelToSnake converts includeTransactionCosts to include_transaction_costs.
// Every upper-case letter after the first rune starts a new word.
func CamelToSnake(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Singular strips one trailing "s" (except for "status") and title-cases the result.
// Used for diagnostic labels only.
func Singular(name string) string {
	if name != "status" {
		name = strings.TrimSuffix(name, "s")
	}
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// toWire converts top-level keys to camelCase. Nested values are sent as-is.
func toWire(params Params) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[SnakeToCamel(k)] = v
	}
	return out
}

// fromWire converts top-level keys to snake_case
func fromWire(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[CamelToSnake(k)] = v
	}
	return out
}
