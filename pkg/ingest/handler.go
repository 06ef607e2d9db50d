package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// connState - состояние обработчика соединения.
type connState int

const (
	stateReceiving connState = iota
	stateParsing
	stateDispatching
	stateResponding
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateReceiving:
		return "Receiving"
	case stateParsing:
		return "Parsing"
	case stateDispatching:
		return "Dispatching"
	case stateResponding:
		return "Responding"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// route - пара метод/путь из закрытого набора протокола.
type route struct {
	method Method
	path   string
}

// exchange - один запрос на соединении и решения, принятые при его выполнении.
type exchange struct {
	conn     *Connection
	req      Request
	shutdown bool
}

// routeHandler выполняет запрос и возвращает текст ответа.
type routeHandler func(ctx context.Context, ex *exchange) string

func (s *Server) defaultRoutes() map[route]routeHandler {
	return map[route]routeHandler{
		{MethodGet, PathStatus}:   s.handleStatus,
		{MethodGet, PathShutdown}: s.handleShutdown,
		{MethodPost, PathData}:    s.handleData,
	}
}

// serveConn проводит соединение через Receiving → Parsing → Dispatching →
// Responding → Closed. Соединение закрывается на любом пути выхода,
// паника обработчика логгируется и не выходит за пределы горутины.
func (s *Server) serveConn(c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Connection handler panic", "conn_id", c.ID(), "panic", r)
		}
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.debug(LogLevelDebug1, "Close error", "conn_id", c.ID(), "error", err)
		}
		s.transition(c, stateClosed)
		s.finishConnection(c)
	}()

	ctx, span := startServerSpan(s.baseCtx, c)
	start := time.Now()

	s.transition(c, stateReceiving)
	if err := c.SetReadTimeout(s.config.ReadTimeout); err != nil {
		s.logger.Error("Failed to set read deadline", "conn_id", c.ID(), "error", err)
	}
	line, err := s.parser.ReadPacket(ctx, c.conn)
	var req Request
	var parseErr error
	switch {
	case errors.Is(err, ErrRequestTooLarge):
		// Ответ 404, как на нераспознанный запрос
		s.logger.Warn("Request exceeds size limit", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString(), "limit", s.parser.MaxSize())
		parseErr = err
	case err != nil:
		s.logReadError(c, err)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		endSpan(span, "", err)
		return
	default:
		s.logger.debug(LogLevelDebug3, "Request received", "conn_id", c.ID(), "bytes", len(line))
		s.logger.Info("Request received", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString(), "request", line)

		s.transition(c, stateParsing)
		req, parseErr = ParseRequest(line)
		if parseErr != nil {
			s.logger.Warn("Failed to parse request", "conn_id", c.ID(), "request", line, "error", parseErr)
		}
	}

	s.transition(c, stateDispatching)
	ex := &exchange{conn: c, req: req}
	response := s.dispatch(ctx, ex, parseErr)

	s.transition(c, stateResponding)
	if err := c.SetWriteTimeout(s.config.WriteTimeout); err != nil {
		s.logger.Error("Failed to set write deadline", "conn_id", c.ID(), "error", err)
	}
	writeErr := s.parser.WritePacket(c.conn, response)
	if writeErr != nil {
		s.logger.Error("Failed to send response", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString(), "error", writeErr)
	} else {
		s.logger.Info("Response sent", "conn_id", c.ID(), "response", response)
		s.logger.debug(LogLevelDebug3, "Response bytes", "conn_id", c.ID(), "bytes", len(response)+1)
	}

	s.metrics.requestHandled(req.Method, s.pathLabel(req), statusCode(response), time.Since(start))
	endSpan(span, response, writeErr)

	// Ответ уже отправлен, теперь можно закрывать listener
	if ex.shutdown {
		s.requestShutdown()
	}
}

// dispatch выбирает обработчик маршрута. Ошибка разбора, превышение
// размера и любые незарегистрированные сочетания метода и пути дают 404.
func (s *Server) dispatch(ctx context.Context, ex *exchange, parseErr error) string {
	if parseErr != nil {
		return ResponseNotFound
	}

	handler, ok := s.routes[route{ex.req.Method, ex.req.Path}]
	if !ok {
		s.logger.Info("Request for unknown path", "conn_id", ex.conn.ID(), "method", ex.req.Method.String(), "path", ex.req.Path)
		return ResponseNotFound
	}
	return handler(ctx, ex)
}

func (s *Server) handleStatus(_ context.Context, _ *exchange) string {
	return ResponseStatusOK
}

// handleShutdown опускает флаг running сразу; listener закрывается
// после отправки ответа (см. serveConn).
func (s *Server) handleShutdown(_ context.Context, ex *exchange) string {
	s.logger.Info("Shutdown request received", "conn_id", ex.conn.ID(), "remote_addr", ex.conn.RemoteAddrString())
	s.running.Store(false)
	ex.shutdown = true
	return ResponseShutdown
}

func (s *Server) handleData(_ context.Context, ex *exchange) string {
	total := s.store.Add(ex.req.Payload)
	s.logger.Info("POST data processed", "conn_id", ex.conn.ID(), "remote_addr", ex.conn.RemoteAddrString(), "total", total)
	return ResponseDataCreated
}

// logReadError различает закрытие пира, таймаут и прочие ошибки чтения.
func (s *Server) logReadError(c *Connection, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("Client disconnected before sending a request", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString())
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Warn("Read timeout", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString())
	case c.IsClosed():
		s.logger.debug(LogLevelDebug1, "Read aborted, connection closed by server", "conn_id", c.ID())
	default:
		s.logger.Error("Read failed", "conn_id", c.ID(), "remote_addr", c.RemoteAddrString(), "error", err)
	}
}

func (s *Server) transition(c *Connection, state connState) {
	s.logger.debug(LogLevelDebug2, "Connection state", "conn_id", c.ID(), "state", state.String())
}

// pathLabel возвращает путь для метрик: зарегистрированный путь или "other".
func (s *Server) pathLabel(req Request) string {
	switch req.Path {
	case PathStatus, PathData, PathShutdown:
		return req.Path
	default:
		return "other"
	}
}

// statusCode извлекает код из текста ответа ("200", "201", "404").
func statusCode(response string) string {
	var code int
	if _, err := fmt.Sscanf(response, "%d", &code); err != nil {
		return "unknown"
	}
	return fmt.Sprint(code)
}
