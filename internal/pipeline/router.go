package pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/internal/queue"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// RouteFunc returns one routing index per row. Negative indexes are
// allowed; the router maps them to worker 0.
type RouteFunc func(rows []types.Row) []int

// PartitionRoute routes by the partition of column col, computing every
// row's partition with one batched domain lookup.
func PartitionRoute(d domain.Domain, col int) RouteFunc {
	return func(rows []types.Row) []int {
		keys := make([]types.Value, len(rows))
		for i, r := range rows {
			keys[i] = r[col]
		}
		return d.PartitionKeys(keys)
	}
}

// HashRoute routes by the hash bucket of column col among n buckets.
func HashRoute(col, n int) RouteFunc {
	return func(rows []types.Row) []int {
		out := make([]int, len(rows))
		for i, r := range rows {
			out[i] = domain.Bucket(r[col], n)
		}
		return out
	}
}

// SingleRoute sends every row to worker 0.
func SingleRoute(rows []types.Row) []int {
	return make([]int, len(rows))
}

// WorkerIndex maps a routing index onto n workers.
func WorkerIndex(index, n int) int {
	if index < 0 {
		index = 0
	}
	return index % n
}

// Router distributes converted rows to the senders. Identical keys always
// reach the same sender because routing depends only on the key and the
// sender count.
type Router struct {
	state   *State
	input   *queue.Queue[types.Row]
	gate    *queue.Gate
	route   RouteFunc
	workers []*Sender

	routing       atomic.Int64
	exitWhenEmpty atomic.Bool
	done          chan struct{}

	logger *zap.Logger
	depth  prometheus.Gauge
}

// NewRouter creates a router over workers.
func NewRouter(state *State, route RouteFunc, workers []*Sender, l *zap.Logger, depth prometheus.Gauge) *Router {
	if route == nil {
		route = SingleRoute
	}
	return &Router{
		state:   state,
		input:   queue.New[types.Row](),
		gate:    queue.NewGate(),
		route:   route,
		workers: workers,
		done:    make(chan struct{}),
		logger:  logger.Component(l, "router"),
		depth:   depth,
	}
}

// Push implements RowSink.
func (r *Router) Push(rows []types.Row) {
	r.input.Push(rows...)
	if r.depth != nil {
		r.depth.Add(float64(len(rows)))
	}
}

// Start launches the router goroutine.
func (r *Router) Start() {
	go r.run()
}

// Exit asks the router to stop once its input is empty.
func (r *Router) Exit() {
	r.exitWhenEmpty.Store(true)
	r.input.Notify()
}

// Wait blocks until the router goroutine has returned.
func (r *Router) Wait() {
	<-r.done
}

func (r *Router) run() {
	defer close(r.done)
	r.logger.Debug("router started", zap.Int("workers", len(r.workers)))
	defer r.logger.Debug("router stopped")

	for !r.state.HasError() {
		if r.input.Len() == 0 {
			r.input.Wait(0)
		}
		if r.state.HasError() {
			return
		}

		release := r.gate.Hold()
		var rows []types.Row
		r.state.Handoff(func() {
			rows = r.input.Pop(table.MaxRows)
			r.routing.Store(int64(len(rows)))
		})
		if len(rows) == 0 {
			release()
			if r.exitWhenEmpty.Load() {
				return
			}
			continue
		}
		if r.depth != nil {
			r.depth.Sub(float64(len(rows)))
		}
		r.dispatch(rows)
		release()
	}
}

// dispatch groups rows per worker, keeping their relative order, and hands
// each group over in one push.
func (r *Router) dispatch(rows []types.Row) {
	n := len(r.workers)
	groups := make([][]types.Row, n)
	if n == 1 {
		groups[0] = rows
	} else {
		indexes := r.route(rows)
		for i, row := range rows {
			w := WorkerIndex(indexes[i], n)
			groups[w] = append(groups[w], row)
		}
	}

	r.state.Handoff(func() {
		for w, g := range groups {
			if len(g) > 0 {
				r.workers[w].Push(g)
			}
		}
		r.routing.Store(0)
	})
}

// pending returns queued plus in-flight rows. Call it inside Snapshot.
func (r *Router) pending() int64 {
	return int64(r.input.Len()) + r.routing.Load()
}

// drain removes the pending rows, between cycles.
func (r *Router) drain() []types.Row {
	release := r.gate.Hold()
	defer release()
	if r.depth != nil {
		r.depth.Set(0)
	}
	return r.input.Drain()
}
