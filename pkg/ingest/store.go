package ingest

import "sync"

// Store - потокобезопасное хранилище принятых payload в порядке добавления.
//
// Чтения (Snapshot, Count) выполняются параллельно друг с другом,
// запись (Add, Clear) исключает всех читателей и других писателей.
// Размер хранилища не ограничен: при постоянной нагрузке оно растет без предела.
type Store struct {
	mu      sync.RWMutex
	records []string

	logger leveledLogger
}

// NewStore создает пустое хранилище. Если logger == nil, логи не пишутся.
func NewStore(logger Logger, level LogLevel) *Store {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Store{
		logger: leveledLogger{Logger: logger, level: level},
	}
}

// Add добавляет запись в конец хранилища и возвращает новое количество записей.
func (s *Store) Add(payload string) int {
	s.mu.Lock()
	s.records = append(s.records, payload)
	total := len(s.records)
	s.mu.Unlock()

	s.logger.debug(LogLevelDebug1, "Record added", "total", total)
	return total
}

// Snapshot возвращает независимую копию всех записей в порядке добавления.
func (s *Store) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.records))
	copy(out, s.records)
	return out
}

// Count возвращает текущее количество записей.
// Между Count и последующим Add атомарность не гарантируется.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear удаляет все записи и возвращает их количество.
func (s *Store) Clear() int {
	s.mu.Lock()
	removed := len(s.records)
	s.records = nil
	s.mu.Unlock()

	s.logger.Info("Store cleared", "removed", removed)
	return removed
}
