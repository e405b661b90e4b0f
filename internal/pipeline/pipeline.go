// Package pipeline runs the write path of a table writer:
//
//	Insert -> Converter -> Router -> Sender[0..n-1] -> store
//
// Each stage is one goroutine fed by a mutex-protected FIFO. The first
// failure anywhere sets a sticky error on the shared State; from then on
// no stage starts new work, and every accepted row stays accounted for as
// sent, failed or queued.
package pipeline

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/metrics"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Config wires the stages of a Pipeline.
type Config struct {
	Schema  *types.TableSchema
	Route   RouteFunc
	Convert convert.Func
	Guard   convert.Guard
	Senders []SenderConfig
	Logger  *zap.Logger
	Metrics *metrics.Table
}

// Pipeline owns the stages of one writer.
type Pipeline struct {
	state     *State
	converter *Converter
	router    *Router
	senders   []*Sender
	logger    *zap.Logger
	cancel    context.CancelFunc
	// stopped is closed once the first Shutdown has joined every stage.
	stopped chan struct{}
}

// New builds the stages without starting them.
func New(cfg Config) *Pipeline {
	l := logger.Component(cfg.Logger, "pipeline")
	state := NewState()

	senders := make([]*Sender, len(cfg.Senders))
	for i, sc := range cfg.Senders {
		sc.Index = i
		if sc.Logger == nil {
			sc.Logger = cfg.Logger
		}
		if sc.Metrics == nil && cfg.Metrics != nil {
			sc.Metrics = cfg.Metrics.Worker(i)
		}
		senders[i] = NewSender(state, sc)
	}

	cc := ConverterConfig{
		Columns: cfg.Schema.Types(),
		Convert: cfg.Convert,
		Guard:   cfg.Guard,
		Logger:  cfg.Logger,
	}
	var routerDepth prometheus.Gauge
	if cfg.Metrics != nil {
		cc.Depth, cc.Failed = cfg.Metrics.Stage("conversion")
		routerDepth, _ = cfg.Metrics.Stage("router")
	}
	router := NewRouter(state, cfg.Route, senders, cfg.Logger, routerDepth)
	cc.Next = router

	return &Pipeline{
		state:     state,
		converter: NewConverter(state, cc),
		router:    router,
		senders:   senders,
		logger:    l,
		stopped:   make(chan struct{}),
	}
}

// Start launches every stage. Senders use ctx for their store calls.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, s := range p.senders {
		s.Start(ctx)
	}
	p.router.Start()
	p.converter.Start()
	p.logger.Debug("pipeline started", zap.Int("senders", len(p.senders)))
}

// State returns the shared state.
func (p *Pipeline) State() *State {
	return p.state
}

// Enqueue hands raw rows to the conversion stage as one step. Nothing is
// enqueued, and false is returned, once the pipeline is exiting.
func (p *Pipeline) Enqueue(rows ...types.RawRow) bool {
	ok := false
	p.state.Handoff(func() {
		if p.state.IsExiting() {
			return
		}
		p.converter.Enqueue(rows...)
		ok = true
	})
	return ok
}

// Status returns a consistent snapshot of every stage.
func (p *Pipeline) Status() Status {
	var st Status
	p.state.Snapshot(func() {
		st.IsExiting = p.state.IsExiting()
		if err := p.state.Err(); err != nil {
			st.ErrorCode = string(err.Type)
			st.ErrorMessage = err.Error()
		}
		st.ThreadStatus = make([]ThreadStatus, 0, len(p.senders)+2)

		unsent, failed := p.converter.counts()
		st.plus(ThreadStatus{Name: "conversion", UnsentRows: unsent, SendFailedRows: failed})
		st.plus(ThreadStatus{Name: "router", UnsentRows: p.router.pending()})
		for i, s := range p.senders {
			sent, unsent, failed := s.counts()
			st.plus(ThreadStatus{
				Name:           "sender-" + strconv.Itoa(i),
				SentRows:       sent,
				UnsentRows:     unsent,
				SendFailedRows: failed,
			})
		}
	})
	return st
}

// Unwritten removes and returns every row not yet sent: each sender's
// failed then pending rows, the router's pending rows, then the
// conversion stage's failed and pending rows. Typed rows come back as
// their native values so they can be inserted again.
func (p *Pipeline) Unwritten() []types.RawRow {
	var out []types.RawRow
	for _, s := range p.senders {
		for _, r := range s.drain() {
			out = append(out, types.NativeRow(r))
		}
	}
	for _, r := range p.router.drain() {
		out = append(out, types.NativeRow(r))
	}
	out = append(out, p.converter.drain()...)
	return out
}

// Shutdown drains and stops the stages in order: conversion, router, then
// senders. Once every sender has returned it calls release, typically to
// close connections, and marks the pipeline closed. Only the first call
// does the work; concurrent and later calls block until it has finished
// and then return false.
func (p *Pipeline) Shutdown(release func()) bool {
	var begun bool
	p.state.Snapshot(func() {
		begun = p.state.BeginExit()
	})
	if !begun {
		<-p.stopped
		return false
	}

	p.converter.Exit()
	p.converter.Wait()
	p.router.Exit()
	p.router.Wait()
	for _, s := range p.senders {
		s.Exit()
	}
	for _, s := range p.senders {
		s.Wait()
	}
	if p.cancel != nil {
		p.cancel()
	}
	if release != nil {
		release()
	}
	p.state.EndExit()
	close(p.stopped)

	st := p.Status()
	p.logger.Info("pipeline stopped",
		zap.Int64("sent_rows", st.SentRows),
		zap.Int64("unsent_rows", st.UnsentRows),
		zap.Int64("send_failed_rows", st.SendFailedRows),
		zap.String("error", st.ErrorMessage))
	return true
}
