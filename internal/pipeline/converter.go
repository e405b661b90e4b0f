package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/internal/queue"
	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// RowSink receives converted rows in order.
type RowSink interface {
	Push(rows []types.Row)
}

// Converter is the conversion stage. It is the only stage that calls the
// conversion function, and it does so inside the runtime guard.
type Converter struct {
	state  *State
	input  *queue.Queue[types.RawRow]
	failed *queue.Queue[types.RawRow]
	gate   *queue.Gate

	columns []types.DataType
	fn      convert.Func
	guard   convert.Guard
	next    RowSink

	converting    atomic.Int64
	exitWhenEmpty atomic.Bool
	done          chan struct{}

	logger     *zap.Logger
	depth      prometheus.Gauge
	failedRows prometheus.Counter
}

// ConverterConfig configures a Converter.
type ConverterConfig struct {
	Columns []types.DataType
	Convert convert.Func
	Guard   convert.Guard
	Next    RowSink
	Logger  *zap.Logger
	// Depth and Failed are optional collectors.
	Depth  prometheus.Gauge
	Failed prometheus.Counter
}

// NewConverter creates a conversion stage feeding cfg.Next.
func NewConverter(state *State, cfg ConverterConfig) *Converter {
	fn := cfg.Convert
	if fn == nil {
		fn = convert.Default
	}
	guard := cfg.Guard
	if guard == nil {
		guard = convert.NopGuard
	}
	c := &Converter{
		state:   state,
		input:   queue.New[types.RawRow](),
		failed:  queue.New[types.RawRow](),
		gate:    queue.NewGate(),
		columns: cfg.Columns,
		fn:      fn,
		guard:   guard,
		next:    cfg.Next,
		done:    make(chan struct{}),
		logger:  logger.Component(cfg.Logger, "converter"),

		depth:      cfg.Depth,
		failedRows: cfg.Failed,
	}
	return c
}

// Enqueue appends raw rows to the input queue. Callers run it inside a
// Handoff so that accepted rows show up in status atomically.
func (c *Converter) Enqueue(rows ...types.RawRow) {
	c.input.Push(rows...)
	if c.depth != nil {
		c.depth.Add(float64(len(rows)))
	}
}

// Start launches the stage goroutine.
func (c *Converter) Start() {
	go c.run()
}

// Exit asks the stage to stop once its input is empty.
func (c *Converter) Exit() {
	c.exitWhenEmpty.Store(true)
	c.input.Notify()
}

// Wait blocks until the stage goroutine has returned.
func (c *Converter) Wait() {
	<-c.done
}

func (c *Converter) run() {
	defer close(c.done)
	c.logger.Debug("conversion stage started")
	defer c.logger.Debug("conversion stage stopped")

	for !c.state.HasError() {
		if c.input.Len() == 0 {
			c.input.Wait(0)
		}
		if c.state.HasError() {
			return
		}

		release := c.gate.Hold()
		var batch []types.RawRow
		c.state.Handoff(func() {
			batch = c.input.Pop(table.MaxRows)
			c.converting.Store(int64(len(batch)))
		})
		if len(batch) == 0 {
			release()
			if c.exitWhenEmpty.Load() {
				return
			}
			continue
		}
		if c.depth != nil {
			c.depth.Sub(float64(len(batch)))
		}
		c.process(batch)
		release()
	}
}

// process converts batch in order. On the first failure the rows before
// it go downstream, the rest go to the failed queue.
func (c *Converter) process(batch []types.RawRow) {
	converted := make([]types.Row, 0, len(batch))
	var convErr error
	for i, raw := range batch {
		row, col, err := c.convertRow(raw)
		if err != nil {
			convErr = errors.Wrap(err, errors.ErrorTypeConversion,
				fmt.Sprintf("failed to convert row %d column %d", i, col))
			break
		}
		converted = append(converted, row)
	}

	rest := batch[len(converted):]
	c.state.Handoff(func() {
		if len(converted) > 0 {
			c.next.Push(converted)
		}
		if len(rest) > 0 {
			c.failed.Push(rest...)
		}
		c.converting.Store(0)
	})

	if convErr != nil {
		if c.failedRows != nil {
			c.failedRows.Add(float64(len(rest)))
		}
		c.logger.Error("row conversion failed",
			zap.Int("converted", len(converted)),
			zap.Int("failed", len(rest)),
			zap.Error(convErr))
		c.state.SetError(convErr)
	}
}

func (c *Converter) convertRow(raw types.RawRow) (types.Row, int, error) {
	release := c.guard.Acquire()
	defer release()
	return convert.Row(c.fn, raw, c.columns)
}

// counts returns queued plus in-flight rows and failed rows. Call it
// inside Snapshot.
func (c *Converter) counts() (unsent, failed int64) {
	return int64(c.input.Len()) + c.converting.Load(), int64(c.failed.Len())
}

// drain removes the failed then pending raw rows, between cycles.
func (c *Converter) drain() []types.RawRow {
	release := c.gate.Hold()
	defer release()
	out := c.failed.Drain()
	out = append(out, c.input.Drain()...)
	if c.depth != nil {
		c.depth.Set(0)
	}
	return out
}
