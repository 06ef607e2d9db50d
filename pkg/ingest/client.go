package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClientNotConnected возвращается, если клиент не подключен
	// и переподключение выключено
	ErrClientNotConnected = errors.New("client not connected")

	// ErrReconnectFailed возвращается когда исчерпаны все попытки переподключения
	ErrReconnectFailed = errors.New("reconnect failed: max attempts reached")

	// ErrConnectionFailed возвращается, если не удалось подключиться ни к одному адресу
	ErrConnectionFailed = errors.New("connection failed")

	// ErrEmptyResponse возвращается, если сервер прислал пустой ответ
	ErrEmptyResponse = errors.New("empty response")
)

// Значения по умолчанию для клиента.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = 1 * time.Second
)

// ClientConfig содержит параметры конфигурации TCP клиента.
type ClientConfig struct {
	// ConnectTimeout таймаут установки соединения с одним адресом.
	// Если 0, используется DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ReadTimeout ограничивает ожидание ответа. 0 - DefaultReadTimeout.
	ReadTimeout time.Duration

	// WriteTimeout ограничивает отправку запроса. 0 - DefaultWriteTimeout.
	WriteTimeout time.Duration

	// ReconnectEnabled включает переподключение при ошибке транспорта.
	// Может быть изменен во время работы через SetReconnectEnabled.
	ReconnectEnabled bool

	// MaxReconnectAttempts максимальное количество попыток переподключения.
	// Если 0, используется DefaultMaxReconnectAttempts.
	MaxReconnectAttempts int

	// ReconnectBaseDelay - единица задержки. Перед попыткой i клиент ждет
	// ReconnectBaseDelay * i (линейный рост). Если 0 - DefaultReconnectBaseDelay.
	ReconnectBaseDelay time.Duration

	// MaxResponseSize - максимальная длина строки ответа. 0 - DefaultMaxLineSize.
	MaxResponseSize int

	// OnReconnecting вызывается перед ожиданием каждой попытки переподключения.
	OnReconnecting func(attempt int, delay time.Duration)

	// DialContext устанавливает соединение с одним адресом.
	// Если nil, используется net.Dialer с ConnectTimeout.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)

	// Metrics - Prometheus метрики. nil отключает сбор.
	Metrics *Metrics

	// Logger используется для логгирования событий клиента.
	// Если nil, используется NoopLogger.
	Logger Logger

	// LogLevel управляет детализацией debug логов.
	LogLevel LogLevel
}

// Client - TCP клиент с политикой переподключения.
//
// Состояния: Disconnected → Connected ⇄ Reconnecting. Один вызов SendRequest -
// один обмен запрос/ответ. Сервер закрывает соединение после ответа, поэтому
// после успешного обмена клиент тоже закрывает свою сторону и следующий вызов
// переподключается согласно политике.
//
// Методы безопасны для конкурентного вызова, обмены выполняются по очереди.
type Client struct {
	address string
	config  ClientConfig

	mu               sync.Mutex
	conn             net.Conn
	connected        atomic.Bool
	reconnectEnabled atomic.Bool

	parser  *LineParser
	metrics *Metrics
	logger  leveledLogger
}

// NewClient создает клиент для адреса "host:port". Пустой хост заменяется на DefaultHost.
//
// Пример:
//
//	client := NewClient("127.0.0.1:8080", ClientConfig{
//	    ReconnectEnabled:     true,
//	    MaxReconnectAttempts: 3,
//	    ReconnectBaseDelay:   time.Second,
//	})
func NewClient(address string, config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = NewNoopLogger()
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.ReconnectBaseDelay == 0 {
		config.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if config.DialContext == nil {
		dialer := &net.Dialer{Timeout: config.ConnectTimeout}
		config.DialContext = dialer.DialContext
	}

	if host, port, err := net.SplitHostPort(address); err == nil && host == "" {
		address = net.JoinHostPort(DefaultHost, port)
	}

	c := &Client{
		address: address,
		config:  config,
		parser:  NewLineParserWithLimit(config.MaxResponseSize),
		metrics: config.Metrics,
		logger:  leveledLogger{Logger: config.Logger, level: config.LogLevel},
	}
	c.reconnectEnabled.Store(config.ReconnectEnabled)
	return c
}

// Connect подключается к серверу. Если клиент уже подключен, ничего не делает.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}
	return c.dial(ctx)
}

// dial разрешает адрес и пробует кандидатов по порядку. Вызывается под c.mu.
func (c *Client) dial(ctx context.Context) error {
	candidates, err := resolveCandidates(ctx, c.address)
	if err != nil {
		c.logger.Error("Failed to resolve server address", "address", c.address, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	var errs []error
	for _, addr := range candidates {
		conn, err := c.config.DialContext(ctx, "tcp", addr)
		if err != nil {
			c.logger.debug(LogLevelDebug1, "Dial failed", "address", addr, "error", err)
			errs = append(errs, err)
			continue
		}

		c.conn = conn
		c.connected.Store(true)
		c.logger.Info("Connected to server", "address", addr)
		return nil
	}

	c.logger.Error("Failed to connect", "address", c.address)
	return fmt.Errorf("%w: %w", ErrConnectionFailed, errors.Join(errs...))
}

// SendRequest отправляет запрос и возвращает строку ответа без '\n'.
// При любой ошибке возвращает пустую строку и ошибку.
func (c *Client) SendRequest(ctx context.Context, method Method, path, payload string) (string, error) {
	requestID := uuid.NewString()
	ctx, span := startClientSpan(ctx, requestID, c.address, method, path)

	response, err := c.sendRequest(ctx, requestID, method, path, payload)

	endSpan(span, response, err)
	if err != nil {
		c.metrics.clientRequest("error")
		return "", err
	}
	c.metrics.clientRequest("ok")
	return response, nil
}

func (c *Client) sendRequest(ctx context.Context, requestID string, method Method, path, payload string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.Load() {
		if !c.reconnectEnabled.Load() {
			c.logger.Error("Not connected to server", "request_id", requestID)
			return "", ErrClientNotConnected
		}
		if err := c.reconnect(ctx); err != nil {
			return "", err
		}
	}

	request := FormatRequest(method, path, payload)
	c.logger.Info("Sending request", "request_id", requestID, "request", request)

	if err := c.write(request); err != nil {
		c.logger.Error("Failed to send request", "request_id", requestID, "error", err)
		c.closeConn()

		if !c.reconnectEnabled.Load() {
			return "", fmt.Errorf("send request: %w", err)
		}
		if err := c.reconnect(ctx); err != nil {
			return "", err
		}
		if err := c.write(request); err != nil {
			c.logger.Error("Failed to send request after reconnect", "request_id", requestID, "error", err)
			c.closeConn()
			return "", fmt.Errorf("send request after reconnect: %w", err)
		}
	}

	response, err := c.read(ctx)
	// Сервер закрывает соединение после ответа
	c.closeConn()
	if err != nil {
		c.logger.Error("Failed to receive response", "request_id", requestID, "error", err)
		return "", fmt.Errorf("read response: %w", err)
	}
	if response == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Info("Received response", "request_id", requestID, "response", response)
	return response, nil
}

// reconnect выполняет до MaxReconnectAttempts попыток. Перед попыткой i
// ждет reconnectDelay(i). Вызывается под c.mu.
func (c *Client) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		delay := c.reconnectDelay(attempt)
		if c.config.OnReconnecting != nil {
			c.config.OnReconnecting(attempt, delay)
		}
		c.logger.debug(LogLevelDebug1, "Reconnecting", "address", c.address, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := c.dial(ctx); err != nil {
			c.metrics.reconnectAttempt("failed")
			c.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		c.metrics.reconnectAttempt("ok")
		c.logger.Info("Reconnected", "attempt", attempt)
		return nil
	}

	c.logger.Error("Max reconnect attempts reached", "attempts", c.config.MaxReconnectAttempts)
	return fmt.Errorf("%w: %w", ErrReconnectFailed, lastErr)
}

// reconnectDelay - линейная задержка: base * attempt.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	return c.config.ReconnectBaseDelay * time.Duration(attempt)
}

func (c *Client) write(request string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.parser.WritePacket(c.conn, request)
}

func (c *Client) read(ctx context.Context) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		return "", err
	}
	response, err := c.parser.ReadPacket(ctx, c.conn)
	if err != nil {
		return "", err
	}
	c.logger.debug(LogLevelDebug3, "Response bytes", "bytes", len(response))
	return response, nil
}

// closeConn закрывает текущее соединение и переводит клиент в Disconnected.
// Вызывается под c.mu.
func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.debug(LogLevelDebug1, "Close error", "error", err)
	}
	c.conn = nil
	c.connected.Store(false)
}

// Disconnect закрывает соединение, если оно открыто. Идемпотентен.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.closeConn()
		c.logger.Info("Disconnected from server", "address", c.address)
	}
}

// IsConnected возвращает true, если клиент подключен к серверу.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetReconnectEnabled включает или выключает переподключение во время работы.
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.reconnectEnabled.Store(enabled)
}

// ReconnectEnabled возвращает текущее значение политики переподключения.
func (c *Client) ReconnectEnabled() bool {
	return c.reconnectEnabled.Load()
}

// GetAddress возвращает адрес сервера.
func (c *Client) GetAddress() string {
	return c.address
}
