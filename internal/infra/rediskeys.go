package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "idpgw"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAudit — поток записей аудита для SIEM и дашбордов.
	RedisChanAudit = RedisNamespace + ":audit"
)
