// Package ingest предоставляет TCP сервер приема данных с простым строковым протоколом
// и клиент с политикой переподключения.
//
// Протокол: один запрос на соединение, строка "METHOD PATH[ PAYLOAD]\n",
// ответ - одна строка статуса.
//
//	GET  /status    -> "200 OK – Server running"
//	GET  /shutdown  -> "200 OK - Server shutting down" (сервер прекращает прием)
//	POST /data X    -> "201 Created – Data received" (X добавляется в Store)
//	остальное       -> "404 Not Found"
//
// Основные компоненты:
//
// Server - accept loop, реестр обработчиков, флаг running и счетчик соединений
// Connection - принятое соединение, закрывается своим обработчиком
// Store - потокобезопасное хранилище записей (RWMutex)
// Client - клиент с линейной задержкой переподключения
// LineParser - построчный ProtocolParser с накоплением данных
// Metrics - Prometheus метрики сервера и клиента
//
// Пример сервера:
//
//	store := ingest.NewStore(logger, ingest.LogLevelInfo)
//	server := ingest.NewServer(":8080", ingest.Config{
//	    Store:  store,
//	    Logger: logger,
//	})
//	server.SetGracefulTimeout(5 * time.Second)
//
//	done, err := server.Start(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	<-done
//
// Пример клиента:
//
//	client := ingest.NewClient("127.0.0.1:8080", ingest.ClientConfig{
//	    ReconnectEnabled:     true,
//	    MaxReconnectAttempts: 3,
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	resp, err := client.SendRequest(ctx, ingest.MethodPost, ingest.PathData, "hello")
//
// Остановка сервера:
//
// Stop закрывает listener, ждет обработчики не дольше graceful timeout и затем
// закрывает оставшиеся соединения принудительно. Каждое соединение также
// ограничено read/write таймаутами, поэтому зависший пир не блокирует Stop.
package ingest
