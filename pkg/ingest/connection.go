package ingest

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connectionIDCounter - глобальный счетчик для генерации уникальных ID соединений
var connectionIDCounter atomic.Uint64

// Connection - обертка вокруг принятого TCP соединения.
// Принадлежит ровно одному обработчику и закрывается им на любом пути выхода.
type Connection struct {
	// id - уникальный идентификатор соединения
	id uint64

	// conn - базовое TCP соединение
	conn net.Conn

	// адрес пира вычисляется лениво, только когда нужен для логов
	remoteOnce sync.Once
	remote     string

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error

	acceptedAt time.Time
}

// newConnection создает соединение. Используется сервером при accept.
func newConnection(conn net.Conn) *Connection {
	return &Connection{
		id:         connectionIDCounter.Add(1),
		conn:       conn,
		acceptedAt: time.Now(),
	}
}

// ID возвращает уникальный идентификатор соединения.
func (c *Connection) ID() uint64 {
	return c.id
}

// RemoteAddr возвращает удаленный адрес соединения.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// RemoteAddrString возвращает адрес пира строкой или "unknown".
func (c *Connection) RemoteAddrString() string {
	c.remoteOnce.Do(func() {
		c.remote = "unknown"
		if addr := c.conn.RemoteAddr(); addr != nil {
			c.remote = addr.String()
		}
	})
	return c.remote
}

// Age возвращает время с момента accept.
func (c *Connection) Age() time.Duration {
	return time.Since(c.acceptedAt)
}

// Close закрывает соединение. Идемпотентен: повторные вызовы возвращают
// результат первого закрытия. Безопасен для вызова из другой горутины,
// в этом случае блокирующие Read/Write обработчика завершатся с ошибкой.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.closed.Store(true)
	})
	return c.closeErr
}

// IsClosed возвращает true, если соединение закрыто.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// SetReadTimeout устанавливает относительный таймаут для чтения.
// Значение 0 означает отсутствие таймаута.
func (c *Connection) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return c.conn.SetReadDeadline(time.Time{})
	}
	return c.conn.SetReadDeadline(time.Now().Add(timeout))
}

// SetWriteTimeout устанавливает относительный таймаут для записи.
// Значение 0 означает отсутствие таймаута.
func (c *Connection) SetWriteTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.SetWriteDeadline(time.Now().Add(timeout))
}
