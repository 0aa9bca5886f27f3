package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка токена вызывающей стороны.
// Токены выпускает внешний IdP/консоль, шлюз только проверяет подпись (RS256).
type CustomClaims struct {
	Caller string `json:"caller"` // e-mail или имя сервисного аккаунта
	Role   string `json:"role"`   // analyst | helpdesk | admin
	jwt.RegisteredClaims
}

// Identity возвращает вызывающего: явный claim caller, иначе subject.
func (c *CustomClaims) Identity() string {
	if c.Caller != "" {
		return c.Caller
	}
	return c.Subject
}
