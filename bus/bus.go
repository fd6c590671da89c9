// Package bus is the pub/sub transport the Command Reactor sits on: a
// publisher whose Publish path is circuit-broken, and a subscriber that
// reconnects with bounded random backoff and surfaces messages as events.
package bus

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"podolsknews/config"
	"podolsknews/monitoring"
)

// socketTimeout bounds how long the subscriber's receive call blocks
// before it wakes to check the running flag.
const socketTimeout = 2 * time.Second

// Publisher publishes status messages on the output channel, guarded by a
// circuit breaker so a wedged broker doesn't stall the Reactor worker.
type Publisher struct {
	client  *redis.Client
	channel string
	breaker *gobreaker.CircuitBreaker
	log     *monitoring.Logger
}

// NewPublisher builds a Publisher against cfg's output channel.
func NewPublisher(cfg *config.BusConfig) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	settings := gobreaker.Settings{
		Name:    "bus-publish",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			monitoring.IncrementCircuitBreakerTrips()
		},
	}

	return &Publisher{
		client:  client,
		channel: cfg.OutChannel,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     monitoring.NewLogger("Bus"),
	}
}

// Publish marshals v and publishes it on the output channel.
func (p *Publisher) Publish(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.client.Publish(ctx, p.channel, data).Err()
	})
	if err != nil {
		p.log.Error("не удалось опубликовать сообщение в шину: %v", err)
	}
	return err
}

// Close releases the underlying connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Handler processes one raw input-channel message. An error is logged but
// never torn down the subscription.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber runs the bus consume loop on its own worker goroutine,
// reconnecting on disconnect with bounded random backoff.
type Subscriber struct {
	cfg     *config.BusConfig
	handler Handler
	log     *monitoring.Logger

	stop    chan struct{}
	stopped chan struct{}
}

// NewSubscriber builds a Subscriber over cfg's input channel.
func NewSubscriber(cfg *config.BusConfig, handler Handler) *Subscriber {
	return &Subscriber{
		cfg:     cfg,
		handler: handler,
		log:     monitoring.NewLogger("Bus"),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the consume loop until Stop is called or ctx is cancelled.
// It blocks; callers should run it on its own goroutine.
func (s *Subscriber) Start(ctx context.Context) {
	defer close(s.stopped)

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			monitoring.IncrementBusReconnects()
			s.log.Warn("соединение с шиной потеряно, переподключение: %v", err)
			if !s.sleepBackoff() {
				return
			}
		}
	}
}

// Stop signals the consume loop to exit and waits for it to do so.
func (s *Subscriber) Stop() {
	close(s.stop)
	<-s.stopped
}

// runOnce opens one subscription and consumes until a read error or stop
// signal, returning the error that ended the loop (nil on a clean stop).
func (s *Subscriber) runOnce(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         s.cfg.Addr,
		Password:     s.cfg.Password,
		DB:           s.cfg.DB,
		ReadTimeout:  socketTimeout,
		WriteTimeout: socketTimeout,
	})
	defer client.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := client.Ping(connectCtx).Err()
	cancel()
	if err != nil {
		return err
	}

	pubsub := client.Subscribe(ctx, s.cfg.InChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			monitoring.IncrementReactorCommands()
			if err := s.handler(ctx, []byte(msg.Payload)); err != nil {
				s.log.Error("ошибка обработки команды: %v", err)
			}
		}
	}
}

// sleepBackoff sleeps a uniform random delay in [MinBackoff, MaxBackoff]
// ms, polling the stop flag every 100ms so Stop remains responsive. It
// returns false if stop fired during the sleep.
func (s *Subscriber) sleepBackoff() bool {
	lo, hi := s.cfg.MinBackoff, s.cfg.MaxBackoff
	if hi < lo {
		hi = lo
	}
	delay := time.Duration(lo+rand.Intn(hi-lo+1)) * time.Millisecond

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.Now().Add(delay)
	for time.Now().Before(deadline) {
		select {
		case <-s.stop:
			return false
		case <-ticker.C:
		}
	}
	return true
}
