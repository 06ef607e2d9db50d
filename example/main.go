// Пример: сервер и клиент в одном процессе.
//
// Запускает сервер, отправляет несколько POST /data, проверяет статус
// и останавливает сервер запросом GET /shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/ingest/pkg/ingest"
)

func main() {
	var (
		address  = flag.String("addr", "127.0.0.1:0", "Address to listen on")
		messages = flag.Int("n", 3, "Number of POST /data requests")
		logLevel = flag.Int("log-level", 0, "Log level: 0=Info, 1=Debug1, 2=Debug2, 3=Debug3")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	level := ingest.LogLevel(*logLevel)

	server := ingest.NewServer(*address, ingest.Config{
		Logger:   logger,
		LogLevel: level,
	})
	server.SetGracefulTimeout(2 * time.Second)

	ctx := context.Background()
	done, err := server.Start(ctx)
	if err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	client := ingest.NewClient(server.GetAddress(), ingest.ClientConfig{
		ReconnectEnabled:   true,
		ReconnectBaseDelay: 100 * time.Millisecond,
		OnReconnecting: func(attempt int, delay time.Duration) {
			logger.Info("Reconnecting", "attempt", attempt, "delay", delay)
		},
		Logger:   logger,
		LogLevel: level,
	})
	if err := client.Connect(ctx); err != nil {
		logger.Error("Failed to connect", "error", err)
		_ = server.Stop()
		os.Exit(1)
	}
	defer client.Disconnect()

	send := func(method ingest.Method, path, payload string) {
		response, err := client.SendRequest(ctx, method, path, payload)
		if err != nil {
			logger.Error("Request failed", "method", method.String(), "path", path, "error", err)
			return
		}
		fmt.Println(response)
	}

	send(ingest.MethodGet, ingest.PathStatus, "")
	for i := 1; i <= *messages; i++ {
		send(ingest.MethodPost, ingest.PathData, fmt.Sprintf("message #%d", i))
	}
	send(ingest.MethodGet, "/unknown", "")
	send(ingest.MethodGet, ingest.PathShutdown, "")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("Server did not stop in time, forcing")
		_ = server.Stop()
		<-done
	}

	for i, rec := range server.Store().Snapshot() {
		fmt.Printf("%d: %s\n", i, rec)
	}
}
