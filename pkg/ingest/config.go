package ingest

import (
	"fmt"
	"strings"
)

// LogLevel определяет уровень детализации логирования библиотеки.
// Уровни влияют только на debug логи - Info, Warn и Error выводятся всегда.
type LogLevel int

const (
	// LogLevelInfo отключает все debug логи.
	LogLevelInfo LogLevel = 0

	// LogLevelDebug1 включает основные debug события:
	// - Закрытие соединений
	// - Попытки reconnect и их результаты
	// - Добавление записей в хранилище
	LogLevelDebug1 LogLevel = 1

	// LogLevelDebug2 добавляет переходы состояний обработчика соединения
	// (Receiving, Parsing, Dispatching, Responding, Closed).
	LogLevelDebug2 LogLevel = 2

	// LogLevelDebug3 добавляет количество прочитанных и отправленных байт.
	// ВНИМАНИЕ: Генерирует большой объем логов!
	LogLevelDebug3 LogLevel = 3
)

// String возвращает строковое представление уровня логирования.
func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "Info"
	case LogLevelDebug1:
		return "Debug1"
	case LogLevelDebug2:
		return "Debug2"
	case LogLevelDebug3:
		return "Debug3"
	default:
		return "Unknown"
	}
}

// ParseLogLevel разбирает уровень из строки ("info", "debug1".."debug3")
// или из числа ("0".."3").
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "info":
		return LogLevelInfo, nil
	case "1", "debug1", "debug":
		return LogLevelDebug1, nil
	case "2", "debug2":
		return LogLevelDebug2, nil
	case "3", "debug3":
		return LogLevelDebug3, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
