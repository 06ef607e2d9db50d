package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrServerNotStarted возвращается при попытке остановить незапущенный сервер
	ErrServerNotStarted = errors.New("server not started")

	// ErrServerAlreadyStarted возвращается при повторном запуске сервера
	ErrServerAlreadyStarted = errors.New("server already started")
)

// Значения по умолчанию для таймаутов сервера.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
)

// Config содержит параметры конфигурации TCP сервера.
type Config struct {
	// MaxConnections ограничивает количество одновременно обслуживаемых соединений.
	// 0 или отрицательное значение означает отсутствие ограничения.
	MaxConnections int

	// ReadTimeout ограничивает ожидание запроса от пира.
	// 0 - значение по умолчанию (DefaultReadTimeout), отрицательное - без таймаута.
	ReadTimeout time.Duration

	// WriteTimeout ограничивает отправку ответа.
	// 0 - значение по умолчанию (DefaultWriteTimeout), отрицательное - без таймаута.
	WriteTimeout time.Duration

	// MaxRequestSize - максимальная длина строки запроса в байтах.
	// 0 - DefaultMaxLineSize.
	MaxRequestSize int

	// Store - хранилище, в которое попадают данные POST /data.
	// Если nil, сервер создает собственное.
	Store *Store

	// Metrics - Prometheus метрики. nil отключает сбор.
	Metrics *Metrics

	// Logger используется для логгирования событий сервера.
	// Если nil, используется NoopLogger.
	Logger Logger

	// LogLevel управляет детализацией debug логов.
	LogLevel LogLevel
}

// Server - TCP сервер, обслуживающий каждое соединение в отдельной горутине.
//
// Каждое соединение обрабатывает ровно один запрос: чтение строки, разбор,
// выполнение, один ответ и закрытие.
type Server struct {
	// Конфигурация
	address string
	config  Config

	// Состояние сервера. mu защищает started и поля, которые заполняет Start.
	mu              sync.Mutex
	started         bool
	listener        net.Listener
	running         atomic.Bool // флаг, разрешающий accept loop
	ctx             context.Context
	cancel          context.CancelFunc
	baseCtx         context.Context // контекст без отмены сервера, для обработчиков
	stopOnce        sync.Once
	gracefulTimeout time.Duration
	done            chan struct{}

	// Управление соединениями
	connections sync.Map       // map[*Connection]struct{} - обработчики в работе
	acceptWg    sync.WaitGroup // для ожидания завершения acceptLoop
	connWg      sync.WaitGroup // для ожидания завершения всех обработчиков
	connCount   atomic.Int64   // счетчик активных обработчиков

	store   *Store
	parser  *LineParser
	routes  map[route]routeHandler
	metrics *Metrics
	logger  leveledLogger
}

// NewServer создает новый TCP сервер.
//
// Параметры:
//   - address: адрес в формате "host:port" (":8080", "localhost:8080", ":0")
//   - config: конфигурация сервера
//
// Пример:
//
//	server := NewServer(":8080", Config{
//	    Logger: slog.Default(),
//	    Store:  NewStore(nil, LogLevelInfo),
//	})
func NewServer(address string, config Config) *Server {
	if config.Logger == nil {
		config.Logger = NewNoopLogger()
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.Store == nil {
		config.Store = NewStore(config.Logger, config.LogLevel)
	}

	s := &Server{
		address:         address,
		config:          config,
		gracefulTimeout: DefaultGracefulTimeout,
		store:           config.Store,
		parser:          NewLineParserWithLimit(config.MaxRequestSize),
		metrics:         config.Metrics,
		logger:          leveledLogger{Logger: config.Logger, level: config.LogLevel},
	}
	s.routes = s.defaultRoutes()
	s.metrics.trackStore(s.store)
	return s
}

// SetGracefulTimeout устанавливает время, которое Stop ждет завершения
// обработчиков перед принудительным закрытием их соединений.
// 0 означает немедленное закрытие. Вызывать до Stop.
func (s *Server) SetGracefulTimeout(timeout time.Duration) {
	s.gracefulTimeout = timeout
}

// Start открывает listener и запускает accept loop в отдельной горутине.
//
// Возвращает канал, который закрывается после полной остановки сервера.
// Сервер останавливается при вызове Stop, при отмене ctx или по запросу
// GET /shutdown.
//
// Пример:
//
//	done, err := server.Start(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	<-done
func (s *Server) Start(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, ErrServerAlreadyStarted
	}

	listener, err := s.listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener: %w", err)
	}

	s.listener = listener
	s.baseCtx = context.WithoutCancel(ctx)
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running.Store(true)
	s.started = true

	s.logger.Info("TCP server started", "address", listener.Addr().String())

	s.acceptWg.Add(1)
	go s.acceptLoop()

	go s.contextMonitor()

	return s.done, nil
}

// listen пробует по очереди все адреса, в которые разрешается s.address,
// и возвращает первый успешно открытый listener.
// SO_REUSEADDR Go выставляет на listener сам.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	candidates, err := resolveCandidates(ctx, s.address)
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	var errs []error
	for _, addr := range candidates {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		s.logger.Warn("Bind failed", "address", addr, "error", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// resolveCandidates разворачивает "host:port" в список адресов для bind/dial.
// Пустой хост и IP литерал возвращаются как есть.
func resolveCandidates(ctx context.Context, address string) ([]string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if host == "" || net.ParseIP(host) != nil {
		return []string{address}, nil
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, net.JoinHostPort(a, port))
	}
	return out, nil
}

// acceptLoop принимает подключения, пока поднят флаг running.
func (s *Server) acceptLoop() {
	defer s.acceptWg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener закрыт - выходим из цикла
			if errors.Is(err, net.ErrClosed) || !s.running.Load() {
				return
			}
			s.metrics.acceptFailed()
			s.logger.Error("Accept error", "error", err)
			continue
		}

		// Флаг мог опуститься, пока мы ждали в Accept
		if !s.running.Load() {
			_ = conn.Close()
			return
		}

		if s.config.MaxConnections > 0 && s.connCount.Load() >= int64(s.config.MaxConnections) {
			s.logger.Warn("Max connections reached, rejecting connection", "remote_addr", conn.RemoteAddr())
			s.metrics.connectionRejected()
			_ = conn.Close()
			continue
		}

		s.handleConnection(conn)
	}
}

// contextMonitor отслеживает завершение контекста и останавливает сервер.
func (s *Server) contextMonitor() {
	<-s.ctx.Done()
	s.logger.debug(LogLevelDebug1, "Context cancelled, stopping server")
	_ = s.Stop()
}

// handleConnection регистрирует соединение и запускает для него обработчик.
func (s *Server) handleConnection(conn net.Conn) {
	s.connWg.Add(1)
	active := s.connCount.Add(1)
	s.metrics.connectionAccepted()

	connection := newConnection(conn)
	s.connections.Store(connection, struct{}{})

	s.logger.Info("New connection", "conn_id", connection.ID(), "remote_addr", connection.RemoteAddrString(), "active", active)

	go s.serveConn(connection)
}

// finishConnection снимает соединение с учета. Вызывается обработчиком ровно один раз.
func (s *Server) finishConnection(c *Connection) {
	s.connections.Delete(c)
	active := s.connCount.Add(-1)
	s.metrics.connectionFinished()
	s.connWg.Done()

	s.logger.debug(LogLevelDebug1, "Connection handler finished", "conn_id", c.ID(), "active", active, "duration", c.Age())
}

// requestShutdown опускает флаг running и отменяет контекст сервера;
// остановку выполняет contextMonitor.
func (s *Server) requestShutdown() {
	s.running.Store(false)
	s.cancel()
}

// Stop останавливает сервер.
//
// Процесс остановки:
//  1. Опускает флаг running и закрывает listener (новые подключения не принимаются)
//  2. Ждет завершения accept loop
//  3. Ждет обработчики не дольше gracefulTimeout
//  4. Принудительно закрывает оставшиеся соединения, что прерывает их Read/Write
//  5. Ждет все обработчики и закрывает канал done
//
// Метод потокобезопасен и может быть вызван многократно.
func (s *Server) Stop() error {
	// Start держит mu до полной инициализации, поэтому после проверки
	// listener, cancel и done уже заполнены
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrServerNotStarted
	}

	var stopErr error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping TCP server...")

		s.running.Store(false)
		s.cancel()

		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("Error closing listener", "error", err)
			stopErr = err
		}
		s.acceptWg.Wait()

		if s.gracefulTimeout > 0 {
			done := make(chan struct{})
			go func() {
				s.connWg.Wait()
				close(done)
			}()

			select {
			case <-done:
				s.logger.debug(LogLevelDebug2, "All connection handlers finished")
			case <-time.After(s.gracefulTimeout):
				s.logger.Warn("Graceful shutdown timeout, forcefully closing remaining connections",
					"remaining", s.connCount.Load())
			}
		}

		s.connections.Range(func(key, _ any) bool {
			if c, ok := key.(*Connection); ok {
				_ = c.Close()
			}
			return true
		})

		s.connWg.Wait()

		s.logger.Info("TCP server stopped", "records", s.store.Count())
		close(s.done)
	})

	return stopErr
}

// Done возвращает канал, закрываемый после полной остановки.
// До Start возвращает nil.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// GetConnectionCount возвращает количество активных обработчиков.
func (s *Server) GetConnectionCount() int64 {
	return s.connCount.Load()
}

// IsRunning возвращает значение флага running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// GetAddress возвращает фактический адрес listener или исходный адрес до Start.
func (s *Server) GetAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Store возвращает хранилище сервера.
func (s *Server) Store() *Store {
	return s.store
}
