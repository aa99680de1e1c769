package models

import "time"

const (
	// DefaultQuiescenceInterval пауза после подтверждения перед сбросом диалога
	DefaultQuiescenceInterval = 6 * time.Second

	// DefaultQueueSize размер очереди событий одного диалога
	DefaultQueueSize = 64

	// DefaultSnapshotTTL время жизни снимка диалога в Redis
	DefaultSnapshotTTL = 24 * time.Hour

	// DatePickerDays количество дней, предлагаемых в календаре
	DatePickerDays = 14

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// BookingIDOffset смещение числовой части идентификатора брони
	BookingIDOffset = 1000

	// FixedOTPCode код подтверждения в тестовом режиме
	FixedOTPCode = "1234"

	// DefaultCurrency валюта оплаты по умолчанию
	DefaultCurrency = "USD"
)

const BookingIDPrefix = "BK-"

const CancelCommand = "cancel"
