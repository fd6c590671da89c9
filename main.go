package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL драйвер

	"podolsknews/bus"
	"podolsknews/classify"
	"podolsknews/config"
	"podolsknews/db"
	"podolsknews/feed"
	"podolsknews/httpapi"
	"podolsknews/ingest"
	"podolsknews/monitoring"
	"podolsknews/poller"
	"podolsknews/reactor"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logLevel := getEnv("LOG_LEVEL", "INFO")
	monitoring.SetLogLevelFromString(logLevel)
	logger := monitoring.NewLogger("Main")
	logger.Info("запуск сборщика новостей, версия 1.0.0")
	logger.Info("уровень логирования: %s", logLevel)

	cfgDB, err := config.LoadDBConfig(getEnv("DB_CONFIG_PATH", "res/config.json"))
	if err != nil {
		logger.Fatal("не удалось загрузить конфигурацию базы данных: %v", err)
	}
	cfgBus, err := config.LoadBusConfig()
	if err != nil {
		logger.Fatal("не удалось загрузить конфигурацию шины: %v", err)
	}
	cfgClassifier := config.LoadClassifierConfig()

	// pg_conn_thread: the Feed Poller's own connection, driven by the tick
	// scheduler (W1) and never shared with the Reactor's connection.
	logger.Info("подключение к базе данных (pg_conn_thread)...")
	connThread, err := db.Connect(cfgDB)
	if err != nil {
		logger.Fatal("ошибка подключения к базе данных (pg_conn_thread): %v", err)
	}
	defer func() { _ = connThread.Close() }()

	// pg_conn_main: the Command Reactor's connection (W2).
	logger.Info("подключение к базе данных (pg_conn_main)...")
	connMain, err := db.Connect(cfgDB)
	if err != nil {
		logger.Fatal("ошибка подключения к базе данных (pg_conn_main): %v", err)
	}
	defer func() { _ = connMain.Close() }()

	storeThread := db.New(connThread)
	storeMain := db.New(connMain)

	logger.Info("проверка уникального индекса topic(title)...")
	if err := storeThread.EnsureTopicTitleUniqueIndex(ctx); err != nil {
		logger.Fatal("не удалось создать уникальный индекс topic(title): %v", err)
	}

	if getEnv("SEED_DEFAULT_SOURCES", "0") == "1" {
		logger.Info("заполнение демонстрационного набора источников...")
		if err := storeThread.SeedDefaultSources(ctx); err != nil {
			logger.Warn("не удалось заполнить демонстрационный набор источников: %v", err)
		}
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	fetcher := feed.NewFetcher(httpClient)

	scorer := classify.NewOpenAIScorer(cfgClassifier, getEnv("LLM_API_KEY", ""))
	classifier := classify.New(storeThread, scorer, classify.DefaultTaxonomy)
	logger.Info("загрузка кэша тем из базы данных...")
	if err := classifier.Preload(ctx); err != nil {
		logger.Warn("не удалось предзагрузить кэш тем: %v", err)
	}

	ingestThread := ingest.NewClient(storeThread)
	ingestMain := ingest.NewClient(storeMain)

	pollerCfg := poller.DefaultConfig()
	if cfgDB.LazyTime > 0 {
		pollerCfg.Interval = time.Duration(cfgDB.LazyTime) * time.Second
	}

	// W1: tick-driven ingestion over pg_conn_thread.
	tickIngestor := poller.New(storeThread, fetcher, ingestThread, classifier, pollerCfg)

	// W2: reactor-backing single-source parses over pg_conn_main, sharing
	// the same classifier instance (mutex-guarded) and taxonomy.
	reactorIngestor := poller.New(storeMain, fetcher, ingestMain, classifier, pollerCfg)

	publisher := bus.NewPublisher(cfgBus)
	defer func() { _ = publisher.Close() }()

	cmdReactor := reactor.New(reactorIngestor, publisher)
	subscriber := bus.NewSubscriber(cfgBus, cmdReactor.Handle)

	go func() {
		logger.Info("запуск планировщика опроса источников (W1)...")
		tickIngestor.Start(ctx)
	}()

	go func() {
		logger.Info("запуск подписчика командной шины (W3)...")
		subscriber.Start(ctx)
	}()

	srv := httpapi.NewServer(getEnv("HTTP_ADDR", ":8080"), connThread)
	go func() {
		logger.Info("запуск HTTP-сервера ops на %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP-сервер завершился с ошибкой: %v", err)
		}
	}()

	<-sigChan
	logger.Info("получен сигнал завершения, останавливаем сервисы...")

	cancel()
	tickIngestor.Stop()
	subscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("не удалось корректно остановить HTTP-сервер: %v", err)
	}

	logger.Info("остановка завершена")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
