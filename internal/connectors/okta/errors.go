package okta

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// APIError — ответ IdP со статусом 4xx/5xx. Статус и код ошибки сохраняются
// и доходят до вызывающего и до записи аудита без изменений.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	ErrorCode  string // напр. E0000007
	Summary    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("okta: %s %s failed [%d", e.Method, e.Path, e.StatusCode)
	if e.ErrorCode != "" {
		msg += " " + e.ErrorCode
	}
	msg += "]"
	if e.Summary != "" {
		msg += ": " + e.Summary
	}
	return msg
}

// Code отдает код провайдера, а если его нет — HTTP статус.
func (e *APIError) Code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return strconv.Itoa(e.StatusCode)
}

// Retryable — 5xx и 429. Слой политики сам не ретраит, флаг нужен предохранителю.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type errorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorSummary string `json:"errorSummary"`
}

func newAPIError(method, path string, status int, requestID string, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		RequestID:  requestID,
	}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		apiErr.ErrorCode = eb.ErrorCode
		apiErr.Summary = eb.ErrorSummary
	}
	return apiErr
}
