// Package reactor is the Command Reactor: it turns bus-delivered fetch
// commands into single-source parses, reflecting the outcome back onto the
// source's status and onto the output channel.
package reactor

import (
	"context"
	"encoding/json"

	"podolsknews/monitoring"
)

// Command is the input payload shape: both fields must be > 0 or the
// payload is rejected without touching the source table.
type Command struct {
	SourceID int64 `json:"source_id"`
	UserID   int64 `json:"user_id"`
}

// Status is the output payload shape. Error is omitted on success.
type Status struct {
	SourceID int64  `json:"source_id"`
	UserID   int64  `json:"user_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	statusActive = "active"
	statusError  = "error"
)

// ingestor is the subset of the Poller's single-source API the Reactor
// drives, kept as an interface so tests can substitute a fake.
type ingestor interface {
	ParseOneSourceByID(ctx context.Context, sourceID int64) error
	SetSourceStatus(ctx context.Context, sourceID int64, status string) (bool, error)
}

// publisher is the subset of bus.Publisher the Reactor needs.
type publisher interface {
	Publish(ctx context.Context, v interface{}) error
}

// Reactor dispatches bus-delivered fetch commands to the Poller's
// single-source parse method and reports the outcome on the output channel.
type Reactor struct {
	ingestor  ingestor
	publisher publisher
	log       *monitoring.Logger
}

// New builds a Reactor.
func New(ing ingestor, pub publisher) *Reactor {
	return &Reactor{
		ingestor:  ing,
		publisher: pub,
		log:       monitoring.NewLogger("Reactor"),
	}
}

// Handle implements bus.Handler: parse the payload, dispatch, and always
// publish a Status, malformed payloads included.
func (r *Reactor) Handle(ctx context.Context, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		monitoring.IncrementReactorFailure()
		return r.publisher.Publish(ctx, Status{SourceID: -1, UserID: -1, Status: statusError, Error: "bad_payload"})
	}

	if cmd.SourceID <= 0 || cmd.UserID <= 0 {
		monitoring.IncrementReactorFailure()
		return r.publisher.Publish(ctx, Status{SourceID: cmd.SourceID, UserID: cmd.UserID, Status: statusError, Error: "bad_payload_fields"})
	}

	return r.dispatch(ctx, cmd)
}

func (r *Reactor) dispatch(ctx context.Context, cmd Command) error {
	err := r.ingestor.ParseOneSourceByID(ctx, cmd.SourceID)
	if err != nil {
		if _, setErr := r.ingestor.SetSourceStatus(ctx, cmd.SourceID, statusError); setErr != nil {
			r.log.Error("не удалось установить статус error для источника %d: %v", cmd.SourceID, setErr)
		}
		monitoring.IncrementReactorFailure()
		return r.publisher.Publish(ctx, Status{SourceID: cmd.SourceID, UserID: cmd.UserID, Status: statusError, Error: err.Error()})
	}

	if _, setErr := r.ingestor.SetSourceStatus(ctx, cmd.SourceID, statusActive); setErr != nil {
		r.log.Error("не удалось установить статус active для источника %d: %v", cmd.SourceID, setErr)
	}
	monitoring.IncrementReactorSuccess()
	return r.publisher.Publish(ctx, Status{SourceID: cmd.SourceID, UserID: cmd.UserID, Status: statusActive})
}
