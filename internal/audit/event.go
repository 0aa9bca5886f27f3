package audit

import "time"

// Record — одна запись аудита на один вызов операции. Пишется один раз и не меняется.
type Record struct {
	ID            string       `json:"id"`             // UUID записи
	Timestamp     time.Time    `json:"timestamp"`      //
	CorrelationID string       `json:"correlation_id"` // Сквозной ID запроса
	Tool          string       `json:"tool"`           // Что хотели сделать
	Caller        string       `json:"caller"`         // Кто делал
	Role          string       `json:"role"`           // С какими правами
	Inputs        interface{}  `json:"inputs"`         // Санитизированный вход
	Result        interface{}  `json:"result,omitempty"`
	Error         *RecordError `json:"error,omitempty"`
	OK            bool         `json:"ok"`
	OktaRequestID string       `json:"okta_request_id,omitempty"`
	DurationMs    int64        `json:"duration_ms"`
}

type RecordError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
