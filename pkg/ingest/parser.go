package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
)

// DefaultMaxLineSize - максимальный размер строки запроса или ответа по умолчанию.
const DefaultMaxLineSize = 4096

// ErrRequestTooLarge возвращается, если строка не завершилась переводом строки
// в пределах допустимого размера.
var ErrRequestTooLarge = errors.New("request line too large")

// ProtocolParser определяет интерфейс для чтения и записи пакетов через соединение.
// Параметр типа T представляет тип данных протокола.
type ProtocolParser[T any] interface {
	// ReadPacket читает один пакет из соединения.
	// Блокируется до получения полного пакета, ошибки или срабатывания deadline.
	ReadPacket(ctx context.Context, conn net.Conn) (T, error)

	// WritePacket записывает один пакет целиком.
	// Отмена происходит через deadline или закрытие сокета на верхнем уровне.
	WritePacket(conn net.Conn, packet T) error
}

// LineParser реализует ProtocolParser[string] для строкового протокола,
// где каждый пакет завершается '\n'.
//
// Чтение накапливает данные из нескольких вызовов Read, поэтому запрос,
// пришедший несколькими TCP сегментами, собирается целиком.
// Завершающий '\r' отбрасывается. Если пир закрыл соединение после
// незавершенной строки, она считается полным пакетом.
type LineParser struct {
	maxSize int
	chunk   int
}

// NewLineParser создает LineParser с лимитом строки по умолчанию.
func NewLineParser() *LineParser {
	return NewLineParserWithLimit(DefaultMaxLineSize)
}

// NewLineParserWithLimit создает LineParser с указанным лимитом строки.
// Значение <= 0 заменяется на DefaultMaxLineSize.
func NewLineParserWithLimit(maxSize int) *LineParser {
	if maxSize <= 0 {
		maxSize = DefaultMaxLineSize
	}
	chunk := 512
	if maxSize < chunk {
		chunk = maxSize
	}
	return &LineParser{
		maxSize: maxSize,
		chunk:   chunk,
	}
}

// MaxSize возвращает лимит строки в байтах.
func (p *LineParser) MaxSize() int {
	return p.maxSize
}

// ReadPacket читает строку до '\n'.
//
// Лимит относится к длине строки без '\n' и не зависит от того,
// на сколько вызовов Read пришли данные.
// Возвращает io.EOF, если пир закрыл соединение, не прислав ни одного байта,
// и ErrRequestTooLarge, если строка превысила лимит.
func (p *LineParser) ReadPacket(ctx context.Context, conn net.Conn) (string, error) {
	var line []byte
	buf := make([]byte, p.chunk)

	for {
		// Проверяем, не отменен ли контекст
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			line = append(line, buf[:n]...)
			if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
				if idx > p.maxSize {
					return "", ErrRequestTooLarge
				}
				return string(bytes.TrimSuffix(line[:idx], []byte{'\r'})), nil
			}
			if len(line) > p.maxSize {
				return "", ErrRequestTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return string(bytes.TrimSuffix(line, []byte{'\r'})), nil
			}
			return "", err
		}
	}
}

// WritePacket записывает строку, завершая ее '\n'.
// Гарантирует запись всех байт или возвращает ошибку.
func (p *LineParser) WritePacket(conn net.Conn, packet string) error {
	data := make([]byte, 0, len(packet)+1)
	data = append(data, packet...)
	data = append(data, '\n')

	totalWritten := 0
	for totalWritten < len(data) {
		n, err := conn.Write(data[totalWritten:])
		if err != nil {
			return err
		}
		totalWritten += n
	}

	return nil
}
