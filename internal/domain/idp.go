package domain

// Узкие формы ответов. Наружу уходит только безопасное подмножество полей IdP.

type UserResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Login     string `json:"login,omitempty"`
}

type GroupResult struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

type AppResult struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Name   string `json:"name"`
}

type LogEventResult struct {
	UUID      string `json:"uuid"`
	Published string `json:"published"`
	EventType string `json:"eventType"`
	Outcome   string `json:"outcome,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Target    string `json:"target,omitempty"`
}

// Page — страница результатов с курсором продолжения (nil, если страниц больше нет).
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

// Lookup — результат точечного поиска.
type Lookup[T any] struct {
	Found bool `json:"found"`
	Item  *T   `json:"item,omitempty"`
}

// ActionResult — результат мутирующей операции.
type ActionResult struct {
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
	TempPassword string `json:"tempPassword,omitempty"`
}

// ConfirmationRequest — ответ preview-операции.
type ConfirmationRequest struct {
	ConfirmationRequired bool   `json:"confirmationRequired"`
	Message              string `json:"message"`
}
