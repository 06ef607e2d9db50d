package ingest

// Logger определяет интерфейс для логгирования событий сервера и клиента.
// Сигнатуры совпадают с *slog.Logger, поэтому его можно передавать напрямую:
// сообщение плюс пары ключ/значение.
type Logger interface {
	// Debug логгирует отладочное сообщение. Вывод дополнительно
	// ограничивается LogLevel из конфигурации.
	Debug(msg string, args ...any)

	// Info логгирует информационное сообщение.
	Info(msg string, args ...any)

	// Warn логгирует предупреждение о нештатной, но не критичной ситуации.
	Warn(msg string, args ...any)

	// Error логгирует ошибку.
	Error(msg string, args ...any)
}

// noopLogger реализует Logger, но ничего не делает.
// Используется по умолчанию, если логгер не передан.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, args ...any) {}
func (n *noopLogger) Info(msg string, args ...any)  {}
func (n *noopLogger) Warn(msg string, args ...any)  {}
func (n *noopLogger) Error(msg string, args ...any) {}

// NewNoopLogger создает логгер, который игнорирует все сообщения.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

// leveledLogger добавляет к Logger фильтрацию debug сообщений по LogLevel.
type leveledLogger struct {
	Logger
	level LogLevel
}

// debug выводит сообщение только если текущий уровень не ниже требуемого.
func (l leveledLogger) debug(required LogLevel, msg string, args ...any) {
	if l.level >= required {
		l.Logger.Debug(msg, args...)
	}
}
