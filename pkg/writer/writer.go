// Package writer provides a partition-aware multithreaded table writer.
//
// A Writer accepts rows from any number of goroutines, converts them to the
// table's column types, routes each row to a sender by its partition, and
// bulk-inserts micro-batches over one store connection per sender.
//
// # Basic Usage
//
//	opts := writer.DefaultOptions()
//	opts.DBPath, opts.TableName = "dfs://quotes", "trades"
//	opts.ThreadCount, opts.PartitionCol = 4, "sym"
//	opts.BatchSize, opts.Throttle = 1000, 100*time.Millisecond
//
//	w, err := writer.New(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	for _, t := range trades {
//	    if err := w.Insert(t.Sym, t.Time, t.Price); err != nil {
//	        break
//	    }
//	}
//	w.WaitForThreadCompletion()
//	if st := w.GetStatus(); st.HasError() {
//	    unwritten := w.GetUnwrittenData()
//	    // hand unwritten to a new writer with InsertUnwrittenData
//	}
//
// The first failure anywhere in the write path is sticky: the writer stops
// sending, refuses new rows, and keeps every unsent row available through
// GetUnwrittenData.
package writer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tablewriter/internal/pipeline"
	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/metrics"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Status is a snapshot of a writer's counters.
type Status = pipeline.Status

// ThreadStatus holds the counters of one stage.
type ThreadStatus = pipeline.ThreadStatus

// Writer is a multithreaded table writer. All methods are safe for
// concurrent use.
type Writer struct {
	id     string
	opts   Options
	target store.Target
	info   *store.TableInfo
	conns  []store.Conn

	pipe   *pipeline.Pipeline
	logger *zap.Logger
	m      *metrics.Table

	closeOnce sync.Once
}

// New validates opts, opens ThreadCount connections, fetches the table
// schema and starts the pipeline. Every failure is a config error and
// leaves nothing running.
func New(ctx context.Context, opts Options) (*Writer, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	l := logger.Component(opts.Logger, "writer").With(zap.String("writer_id", id))
	if opts.Conn.Logger == nil {
		opts.Conn.Logger = opts.Logger
	}

	dialer := opts.Dialer
	if dialer == nil {
		d, err := store.Lookup(opts.Driver)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown store driver")
		}
		dialer = d
	}

	conns, err := dialAll(ctx, dialer, opts.Conn, opts.ThreadCount)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		id:     id,
		opts:   opts,
		conns:  conns,
		logger: l,
		target: store.Target{
			DBPath:          opts.DBPath,
			TableName:       opts.TableName,
			CompressMethods: opts.CompressMethods,
		},
	}
	route, err := w.resolve(ctx)
	if err != nil {
		w.closeConns()
		return nil, err
	}

	if !opts.DisableMetrics {
		w.m = metrics.ForTable(w.target.String())
	}
	senders := make([]pipeline.SenderConfig, opts.ThreadCount)
	for i := range senders {
		senders[i] = pipeline.SenderConfig{
			Conn:      conns[i],
			Target:    w.target,
			Schema:    w.info.Schema,
			BatchSize: opts.BatchSize,
			Throttle:  opts.Throttle,
			Logger:    l,
		}
	}
	w.pipe = pipeline.New(pipeline.Config{
		Schema:  w.info.Schema,
		Route:   route,
		Convert: opts.Convert,
		Guard:   opts.Guard,
		Senders: senders,
		Logger:  l,
		Metrics: w.m,
	})
	w.pipe.Start(context.WithoutCancel(ctx))

	l.Info("writer started",
		zap.String("table", w.target.String()),
		zap.Int("columns", w.info.Schema.Len()),
		zap.Bool("partitioned", w.info.Partitioned),
		zap.Int("thread_count", opts.ThreadCount),
		zap.Int("batch_size", opts.BatchSize),
		zap.Duration("throttle", opts.Throttle))
	return w, nil
}

func validateOptions(opts *Options) error {
	if opts.ThreadCount < 1 {
		return errors.New(errors.ErrorTypeConfig, "The parameter threadCount must be greater than or equal to 1")
	}
	if opts.BatchSize < 1 {
		return errors.New(errors.ErrorTypeConfig, "The parameter batchSize must be greater than or equal to 1")
	}
	if opts.Throttle < 0 {
		return errors.New(errors.ErrorTypeConfig, "The parameter throttle must be greater than or equal to 0")
	}
	if opts.ThreadCount > 1 && opts.PartitionCol == "" {
		return errors.New(errors.ErrorTypeConfig, "The parameter partitionCol must be specified when threadCount is greater than 1")
	}
	if opts.DBPath == "" {
		return errors.New(errors.ErrorTypeConfig, "The parameter dbPath must be specified")
	}
	for _, m := range opts.CompressMethods {
		if m != compression.None && m != compression.LZ4 && m != compression.Delta {
			return errors.Newf(errors.ErrorTypeConfig, "Unsupported compression method %s", m)
		}
	}
	if len(opts.CompressMethods) > 0 {
		opts.Conn.Compress = true
	}
	return nil
}

// dialAll opens n connections concurrently. On any failure the ones
// already open are closed.
func dialAll(ctx context.Context, d store.Dialer, co store.ConnOptions, n int) ([]store.Conn, error) {
	conns := make([]store.Conn, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		i := i
		g.Go(func() error {
			c, err := d.Dial(gctx, co)
			if err != nil {
				return err
			}
			conns[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range conns {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("Failed to connect to server %s", co.Addr()))
	}
	return conns, nil
}

// resolve fetches the schema over the first connection and picks the
// routing of rows to senders.
func (w *Writer) resolve(ctx context.Context) (pipeline.RouteFunc, error) {
	info, err := w.conns[0].Schema(ctx, w.opts.DBPath, w.opts.TableName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to load the schema of %s", w.target))
	}
	w.info = info
	schema := info.Schema
	threads := w.opts.ThreadCount

	if !info.Partitioned && !w.target.InMemory() && threads > 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "The parameter threadCount must be 1 for a dimension table")
	}
	if n := len(w.opts.CompressMethods); n > 0 && n != schema.Len() {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"The number of elements in parameter compressMethods does not match the column size %d", schema.Len())
	}
	for i, m := range w.opts.CompressMethods {
		if !m.Supports(schema.Columns[i].Type) {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"The compression method %s is not supported for column '%s' of type %s",
				m, schema.Columns[i].Name, schema.Columns[i].Type)
		}
	}
	if threads == 1 {
		return pipeline.SingleRoute, nil
	}

	if info.Partitioned {
		pc, err := partitionColumn(info, w.opts.PartitionCol)
		if err != nil {
			return nil, err
		}
		if schema.Columns[pc.Index].Type.IsArray() {
			return nil, errors.New(errors.ErrorTypeConfig, "The parameter partitionCol cannot be array vector")
		}
		d, err := domain.New(pc.PartitionType, pc.Type, pc.Scheme)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid partition scheme")
		}
		return pipeline.PartitionRoute(d, pc.Index), nil
	}

	idx := schema.Index(w.opts.PartitionCol)
	if idx < 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "No match found for %s", w.opts.PartitionCol)
	}
	if schema.Columns[idx].Type.IsArray() {
		return nil, errors.New(errors.ErrorTypeConfig, "The parameter partitionCol cannot be array vector")
	}
	return pipeline.HashRoute(idx, threads), nil
}

func partitionColumn(info *store.TableInfo, name string) (store.PartitionColumn, error) {
	if len(info.Partitions) == 1 {
		pc := info.Partitions[0]
		if pc.Name != name {
			return pc, errors.Newf(errors.ErrorTypeConfig,
				"The parameter partionCol must be the partitioning column '%s' in the partitioned table", pc.Name)
		}
		return pc, nil
	}
	pc, ok := info.PartitionColumnNamed(name)
	if !ok {
		return pc, errors.New(errors.ErrorTypeConfig,
			"The parameter partionCol must be the partitioning columns in the partitioned table")
	}
	return pc, nil
}

// ID returns the writer's instance id.
func (w *Writer) ID() string {
	return w.id
}

// Schema returns the target table's columns.
func (w *Writer) Schema() *types.TableSchema {
	return w.info.Schema
}

// Insert accepts one row. It fails with an exit error once the writer has
// a sticky error or shutdown has begun, and with a validation error when
// the number of values does not match the column count. A row that cannot
// be converted is reported later through GetStatus.
func (w *Writer) Insert(row ...any) error {
	if w.pipe.State().IsExiting() {
		return errors.New(errors.ErrorTypeExit, "Thread is exiting.")
	}
	if len(row) != w.info.Schema.Len() {
		return errors.Newf(errors.ErrorTypeValidation, "Column counts don't match %d", len(row))
	}
	return w.enqueue(types.RawRow(row))
}

// InsertUnwrittenData feeds rows returned by GetUnwrittenData, usually of
// another writer, through the same path as Insert. Either every row is
// accepted or none is.
func (w *Writer) InsertUnwrittenData(rows []types.RawRow) error {
	if w.pipe.State().IsExiting() {
		return errors.New(errors.ErrorTypeExit, "Thread is exiting.")
	}
	for _, r := range rows {
		if len(r) != w.info.Schema.Len() {
			return errors.Newf(errors.ErrorTypeValidation, "Column counts don't match %d", len(r))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return w.enqueue(rows...)
}

func (w *Writer) enqueue(rows ...types.RawRow) error {
	if !w.pipe.Enqueue(rows...) {
		return errors.New(errors.ErrorTypeExit, "Thread is exiting.")
	}
	if w.m != nil {
		w.m.RowsAccepted.Add(float64(len(rows)))
	}
	return nil
}

// GetStatus returns a consistent snapshot of every stage.
func (w *Writer) GetStatus() Status {
	return w.pipe.Status()
}

// GetUnwrittenData removes and returns every row that has not been sent:
// each sender's failed then pending rows, the router's pending rows, then
// the conversion stage's failed and pending rows.
func (w *Writer) GetUnwrittenData() []types.RawRow {
	return w.pipe.Unwritten()
}

// WaitForThreadCompletion drains every stage, stops the senders and closes
// the connections. It is idempotent. After it returns the writer refuses
// new rows; rows left by a sticky error remain available through
// GetUnwrittenData.
func (w *Writer) WaitForThreadCompletion() {
	if w.pipe.Shutdown(w.closeConns) {
		w.logger.Info("writer stopped")
	}
}

func (w *Writer) closeConns() {
	w.closeOnce.Do(func() {
		for i, c := range w.conns {
			if err := c.Close(); err != nil {
				w.logger.Warn("failed to close connection", zap.Int("worker", i), zap.Error(err))
			}
		}
	})
}
