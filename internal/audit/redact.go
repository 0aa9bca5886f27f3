package audit

import "encoding/json"

// Redacted — маркер, которым заменяются чувствительные значения.
const Redacted = "[REDACTED]"

var (
	sensitiveInputFields  = []string{"password", "secret", "token", "key"}
	sensitiveResultFields = []string{"tempPassword", "secret", "token"}
)

// SanitizeInputs маскирует чувствительные поля верхнего уровня входа.
func SanitizeInputs(v interface{}) interface{} {
	return redact(v, sensitiveInputFields)
}

// SanitizeResult маскирует чувствительные поля верхнего уровня результата.
func SanitizeResult(v interface{}) interface{} {
	return redact(v, sensitiveResultFields)
}

// redact работает только с объектами. Структуры приводятся к map через JSON,
// всё, что не является объектом, проходит без изменений.
func redact(v interface{}, fields []string) interface{} {
	m, ok := asObject(v)
	if !ok {
		return v
	}
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		out[k] = val
	}
	for _, f := range fields {
		if _, ok := out[f]; ok {
			out[f] = Redacted
		}
	}
	return out
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		return t, true
	case json.RawMessage:
		var m map[string]interface{}
		if err := json.Unmarshal(t, &m); err != nil || m == nil {
			return nil, false
		}
		return m, true
	case string, bool, float64, int, int64, []interface{}:
		return nil, false
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
