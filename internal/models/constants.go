package models

// Account approval states. Values are stored verbatim in accounts.status.
const (
	AccountPending   = "pending"
	AccountActive    = "attivo"
	AccountSuspended = "sospeso"
)

// Admission strategies selectable through admission.mode.
const (
	AdmissionFaithful = "faithful"
	AdmissionHardened = "hardened"
)

// Outbox row states.
const (
	NotificationPending   = "pending"
	NotificationRetry     = "retry"
	NotificationSending   = "processing"
	NotificationCompleted = "completed"
	NotificationFailed    = "failed"
)

// Delivery channels understood by the notification worker.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelSheets   = "sheets"
)

const (
	// DefaultMinEnrollment порог, ниже которого класс помечается как sotto_minimo
	DefaultMinEnrollment = 5

	// MinPasswordLength минимальная длина пароля при регистрации
	MinPasswordLength = 8

	// DefaultLoginMaxAttempts попыток входа в окне
	DefaultLoginMaxAttempts = 5

	// DefaultLoginWindow окно ограничения попыток входа
	DefaultLoginWindow = 15 * 60 // 15 минут в секундах

	// DefaultSessionMaxAge время жизни cookie-сессии
	DefaultSessionMaxAge = 7 * 24 * 60 * 60 // 7 дней в секундах

	// DefaultTokenTTL время жизни API токена
	DefaultTokenTTL = 60 * 60 // 1 час в секундах

	// WorkerQueueSize размер in-memory очереди воркера уведомлений
	WorkerQueueSize = 128

	// DateLayout and TimeLayout describe how class dates and times are stored.
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
