package monitoring

import (
	"sync"
	"time"
)

// Metrics собирает метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Feed Poller метрики
	IngestTicksTotal    int64
	IngestTickErrors    int64
	SourcesFetchedTotal int64
	SourcesFetchErrors  int64
	ItemsProcessedTotal int64

	// Article Ingestion метрики
	ArticlesInsertedTotal int64
	ArticlesRejectedTotal int64
	ClustersCreatedTotal  int64
	ClustersMatchedTotal  int64

	// Topic Classifier метрики
	ClassifyInvocationsTotal int64
	ClassifyFallbacksTotal   int64
	ClassifyErrorsTotal      int64

	// Command Reactor метрики
	ReactorCommandsTotal int64
	ReactorSuccessTotal  int64
	ReactorFailureTotal  int64

	// Bus метрики
	BusReconnectsTotal       int64
	CircuitBreakerTripsTotal int64

	// Database метрики
	DBQueriesTotal  int64
	DBQueriesErrors int64

	// Логирование
	LogErrorsTotal int64

	// Время последнего обновления
	LastUpdate time.Time
}

var globalMetrics = &Metrics{
	LastUpdate: time.Now(),
}

// GetMetrics возвращает текущие метрики
func GetMetrics() *Metrics {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	// Возвращаем копию для безопасности
	return &Metrics{
		IngestTicksTotal:         globalMetrics.IngestTicksTotal,
		IngestTickErrors:         globalMetrics.IngestTickErrors,
		SourcesFetchedTotal:      globalMetrics.SourcesFetchedTotal,
		SourcesFetchErrors:       globalMetrics.SourcesFetchErrors,
		ItemsProcessedTotal:      globalMetrics.ItemsProcessedTotal,
		ArticlesInsertedTotal:    globalMetrics.ArticlesInsertedTotal,
		ArticlesRejectedTotal:    globalMetrics.ArticlesRejectedTotal,
		ClustersCreatedTotal:     globalMetrics.ClustersCreatedTotal,
		ClustersMatchedTotal:     globalMetrics.ClustersMatchedTotal,
		ClassifyInvocationsTotal: globalMetrics.ClassifyInvocationsTotal,
		ClassifyFallbacksTotal:   globalMetrics.ClassifyFallbacksTotal,
		ClassifyErrorsTotal:      globalMetrics.ClassifyErrorsTotal,
		ReactorCommandsTotal:     globalMetrics.ReactorCommandsTotal,
		ReactorSuccessTotal:      globalMetrics.ReactorSuccessTotal,
		ReactorFailureTotal:      globalMetrics.ReactorFailureTotal,
		BusReconnectsTotal:       globalMetrics.BusReconnectsTotal,
		CircuitBreakerTripsTotal: globalMetrics.CircuitBreakerTripsTotal,
		DBQueriesTotal:           globalMetrics.DBQueriesTotal,
		DBQueriesErrors:          globalMetrics.DBQueriesErrors,
		LogErrorsTotal:           globalMetrics.LogErrorsTotal,
		LastUpdate:               globalMetrics.LastUpdate,
	}
}

// IncrementIngestTicks увеличивает счетчик тиков поллера
func IncrementIngestTicks() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.IngestTicksTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementIngestTickErrors увеличивает счетчик ошибок тика поллера
func IncrementIngestTickErrors() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.IngestTickErrors++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementSourcesFetched увеличивает счетчик успешно опрошенных источников
func IncrementSourcesFetched() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.SourcesFetchedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementSourcesFetchErrors увеличивает счетчик ошибок опроса источника
func IncrementSourcesFetchErrors() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.SourcesFetchErrors++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementItemsProcessed увеличивает счетчик обработанных элементов фида
func IncrementItemsProcessed() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ItemsProcessedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementArticlesInserted увеличивает счетчик вставленных статей
func IncrementArticlesInserted() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ArticlesInsertedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementArticlesRejected увеличивает счетчик отклоненных статей
func IncrementArticlesRejected() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ArticlesRejectedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementClustersCreated увеличивает счетчик новых кластеров
func IncrementClustersCreated() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ClustersCreatedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementClustersMatched увеличивает счетчик статей, присоединенных к существующему кластеру
func IncrementClustersMatched() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ClustersMatchedTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementClassifyInvocations увеличивает счетчик вызовов классификатора
func IncrementClassifyInvocations() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ClassifyInvocationsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementClassifyFallbacks увеличивает счетчик срабатываний резервной эвристики
func IncrementClassifyFallbacks() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ClassifyFallbacksTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementClassifyErrors увеличивает счетчик ошибок классификатора
func IncrementClassifyErrors() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ClassifyErrorsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementReactorCommands увеличивает счетчик полученных команд реактора
func IncrementReactorCommands() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ReactorCommandsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementReactorSuccess увеличивает счетчик успешно выполненных команд реактора
func IncrementReactorSuccess() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ReactorSuccessTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementReactorFailure увеличивает счетчик неудачных команд реактора
func IncrementReactorFailure() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.ReactorFailureTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementBusReconnects увеличивает счетчик переподключений к шине
func IncrementBusReconnects() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.BusReconnectsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementCircuitBreakerTrips увеличивает счетчик срабатываний автомата защиты
func IncrementCircuitBreakerTrips() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.CircuitBreakerTripsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementDBQueries увеличивает счетчик запросов к БД
func IncrementDBQueries() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.DBQueriesTotal++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementDBQueriesErrors увеличивает счетчик ошибок запросов к БД
func IncrementDBQueriesErrors() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.DBQueriesErrors++
	globalMetrics.LastUpdate = time.Now()
}

// IncrementLogErrors увеличивает счетчик сообщений уровня ERROR/FATAL,
// прошедших через *Logger или *StructuredLogger, так что /metrics отражает частоту ошибок даже
// для компонентов, которые ещё не завели собственный счетчик.
func IncrementLogErrors() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.LogErrorsTotal++
	globalMetrics.LastUpdate = time.Now()
}

// Reset сбрасывает все метрики
func Reset() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics = &Metrics{
		LastUpdate: time.Now(),
	}
}
