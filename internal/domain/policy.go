package domain

// Role определяет набор разрешенных операций вызывающей стороны.
// Порядок привилегий analyst < helpdesk < admin носит справочный характер:
// политика задается явными allow-листами, а не иерархией.
type Role string

const (
	RoleAnalyst  Role = "analyst"
	RoleHelpdesk Role = "helpdesk"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string { return string(r) }
