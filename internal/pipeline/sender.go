package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/internal/queue"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/metrics"
	"github.com/ajitpratap0/tablewriter/pkg/observability"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Index     int
	Conn      store.Conn
	Target    store.Target
	Schema    *types.TableSchema
	BatchSize int
	Throttle  time.Duration
	Logger    *zap.Logger
	Metrics   *metrics.Worker
}

// Sender owns one store connection and sends its queue strictly in FIFO
// order with at most one batch in flight.
type Sender struct {
	cfg    SenderConfig
	state  *State
	input  *queue.Queue[types.Row]
	failed *queue.Queue[types.Row]
	gate   *queue.Gate

	sent    atomic.Int64
	sending atomic.Int64
	exit    atomic.Bool
	done    chan struct{}

	logger *zap.Logger
	m      *metrics.Worker
}

// NewSender creates a sender. It does not take ownership of cfg.Conn;
// the writer closes connections after every sender has stopped.
func NewSender(state *State, cfg SenderConfig) *Sender {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Sender{
		cfg:    cfg,
		state:  state,
		input:  queue.New[types.Row](),
		failed: queue.New[types.Row](),
		gate:   queue.NewGate(),
		done:   make(chan struct{}),
		logger: logger.Component(cfg.Logger, "sender").With(zap.Int("worker", cfg.Index)),
		m:      cfg.Metrics,
	}
}

// Push appends rows to the send queue and wakes the sender.
func (s *Sender) Push(rows []types.Row) {
	s.input.Push(rows...)
	if s.m != nil {
		s.m.QueueDepth.Add(float64(len(rows)))
	}
}

// Start launches the sender goroutine.
func (s *Sender) Start(ctx context.Context) {
	go s.run(ctx)
}

// Exit asks the sender to stop. Rows still queued are flushed unless the
// sticky error is set.
func (s *Sender) Exit() {
	s.exit.Store(true)
	s.input.Notify()
}

// Wait blocks until the sender goroutine has returned.
func (s *Sender) Wait() {
	<-s.done
}

func (s *Sender) isExit() bool {
	return s.exit.Load() || s.state.HasError()
}

func (s *Sender) run(ctx context.Context) {
	defer close(s.done)
	s.logger.Debug("sender started",
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Duration("throttle", s.cfg.Throttle))

	for !s.isExit() {
		if s.input.Len() < 1 {
			s.input.Wait(0)
		}
		if s.isExit() {
			break
		}
		if s.cfg.BatchSize > 1 && s.cfg.Throttle > 0 {
			deadline := time.Now().Add(s.cfg.Throttle)
			for !s.isExit() && s.input.Len() < s.cfg.BatchSize {
				diff := time.Until(deadline)
				if diff <= 0 {
					break
				}
				s.input.Wait(diff)
			}
		}
		for !s.isExit() && s.writeAll(ctx) {
		}
	}

	// flush what is left on a graceful exit
	for !s.state.HasError() && s.writeAll(ctx) {
	}
	s.logger.Debug("sender stopped",
		zap.Int64("sent_rows", s.sent.Load()),
		zap.Int("unsent_rows", s.input.Len()),
		zap.Int("failed_rows", s.failed.Len()))
}

// writeAll sends up to table.MaxRows queued rows as one batch. It returns
// false when the queue was empty.
func (s *Sender) writeAll(ctx context.Context) bool {
	release := s.gate.Hold()
	defer release()

	var items []types.Row
	s.state.Handoff(func() {
		items = s.input.Pop(table.MaxRows)
		s.sending.Store(int64(len(items)))
	})
	if len(items) == 0 {
		return false
	}
	if s.m != nil {
		s.m.QueueDepth.Sub(float64(len(items)))
	}

	timer := metrics.NewTimer()
	accepted, err := s.send(ctx, items)
	if err != nil {
		s.state.Handoff(func() {
			s.failed.Push(items...)
			s.sending.Store(0)
		})
		s.logger.Error("failed to save the inserted data",
			zap.Int("rows", len(items)),
			zap.String("target", s.cfg.Target.String()),
			zap.Error(err))
		if s.m != nil {
			s.m.RowsFailed.Add(float64(len(items)))
			s.m.BatchesError.Inc()
		}
		s.state.SetError(err)
		return true
	}

	if accepted != len(items) {
		s.logger.Warn("accepted row count mismatch",
			zap.Int("accepted", accepted),
			zap.Int("sent", len(items)))
	}
	s.state.Handoff(func() {
		s.sent.Add(int64(len(items)))
		s.sending.Store(0)
	})
	if s.m != nil {
		s.m.RowsSent.Add(float64(len(items)))
		s.m.BatchesOK.Inc()
		s.m.BatchRows.Observe(float64(len(items)))
		s.m.SendLatency.Observe(timer.Stop().Seconds())
	}
	return true
}

func (s *Sender) send(ctx context.Context, items []types.Row) (int, error) {
	batch, err := table.Build(s.cfg.Schema, items)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSend, "failed to append data to the table")
	}
	defer batch.Release()

	attrs := observability.BatchAttrs{Table: s.cfg.Target.String(), Worker: s.cfg.Index, Rows: len(items)}
	accepted, err := observability.TraceBatch(ctx, attrs, func(ctx context.Context) (int, error) {
		return s.cfg.Conn.Insert(ctx, s.cfg.Target, batch)
	})
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeSend) {
			return 0, err
		}
		return 0, errors.Wrap(err, errors.ErrorTypeSend,
			fmt.Sprintf("failed to save the inserted data into %s", s.cfg.Target))
	}
	return accepted, nil
}

// counts returns sent, queued plus in-flight, and failed rows. Call it
// inside Snapshot.
func (s *Sender) counts() (sent, unsent, failed int64) {
	return s.sent.Load(), int64(s.input.Len()) + s.sending.Load(), int64(s.failed.Len())
}

// drain removes the failed then pending rows, between sends.
func (s *Sender) drain() []types.Row {
	release := s.gate.Hold()
	defer release()
	out := s.failed.Drain()
	pending := s.input.Drain()
	if s.m != nil {
		s.m.QueueDepth.Sub(float64(len(pending)))
	}
	return append(out, pending...)
}
