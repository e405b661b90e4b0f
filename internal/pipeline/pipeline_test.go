package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

var testSchema = &types.TableSchema{Columns: []types.ColumnSchema{
	{Name: "key", Type: types.TypeLong},
	{Name: "seq", Type: types.TypeLong},
}}

// recordingConn remembers every batch it was asked to insert.
type recordingConn struct {
	mu    sync.Mutex
	calls [][]types.Row
	times []time.Time
	delay time.Duration
	fail  error
}

func (c *recordingConn) Schema(context.Context, string, string) (*store.TableInfo, error) {
	return &store.TableInfo{Schema: testSchema}, nil
}

func (c *recordingConn) Insert(_ context.Context, _ store.Target, b *table.Batch) (int, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	rows := b.Rows()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return 0, c.fail
	}
	c.calls = append(c.calls, rows)
	c.times = append(c.times, time.Now())
	return len(rows), nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) batches() [][]types.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]types.Row(nil), c.calls...)
}

func (c *recordingConn) rows() []types.Row {
	var out []types.Row
	for _, b := range c.batches() {
		out = append(out, b...)
	}
	return out
}

func longRow(key, seq int64) types.Row {
	return types.Row{
		{Type: types.TypeLong, Data: key},
		{Type: types.TypeLong, Data: seq},
	}
}

func newTestPipeline(route RouteFunc, conns ...*recordingConn) *Pipeline {
	senders := make([]SenderConfig, len(conns))
	for i, c := range conns {
		senders[i] = SenderConfig{
			Conn:      c,
			Target:    store.Target{DBPath: "test"},
			Schema:    testSchema,
			BatchSize: 1,
		}
	}
	return New(Config{
		Schema:  testSchema,
		Route:   route,
		Senders: senders,
		Logger:  zap.NewNop(),
	})
}

func TestSenderBatchCap(t *testing.T) {
	conn := &recordingConn{}
	s := NewSender(NewState(), SenderConfig{
		Conn:      conn,
		Schema:    testSchema,
		BatchSize: 1,
		Logger:    zap.NewNop(),
	})

	const n = 200000
	rows := make([]types.Row, n)
	for i := range rows {
		rows[i] = longRow(1, int64(i))
	}
	s.Push(rows)
	s.Start(context.Background())
	s.Exit()
	s.Wait()

	batches := conn.batches()
	require.GreaterOrEqual(t, len(batches), 4)
	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), table.MaxRows)
		total += len(b)
	}
	assert.Equal(t, n, total)

	sent, unsent, failed := s.counts()
	assert.Equal(t, int64(n), sent)
	assert.Zero(t, unsent)
	assert.Zero(t, failed)
}

func TestSenderThrottle(t *testing.T) {
	conn := &recordingConn{}
	s := NewSender(NewState(), SenderConfig{
		Conn:      conn,
		Schema:    testSchema,
		BatchSize: 1000,
		Throttle:  50 * time.Millisecond,
		Logger:    zap.NewNop(),
	})
	s.Start(context.Background())
	defer func() {
		s.Exit()
		s.Wait()
	}()

	start := time.Now()
	for i := 0; i < 10; i++ {
		s.Push([]types.Row{longRow(1, int64(i))})
	}

	require.Eventually(t, func() bool { return len(conn.batches()) == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	batches := conn.batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 10)

	conn.mu.Lock()
	elapsed := conn.times[0].Sub(start)
	conn.mu.Unlock()
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestSenderFailureKeepsBatch(t *testing.T) {
	conn := &recordingConn{fail: stderrors.New("connection reset")}
	state := NewState()
	s := NewSender(state, SenderConfig{
		Conn:      conn,
		Target:    store.Target{DBPath: "db", TableName: "t"},
		Schema:    testSchema,
		BatchSize: 1,
		Logger:    zap.NewNop(),
	})
	s.Push([]types.Row{longRow(1, 0), longRow(1, 1), longRow(1, 2)})
	s.Start(context.Background())

	require.Eventually(t, state.HasError, time.Second, time.Millisecond)
	s.Exit()
	s.Wait()

	err := state.Err()
	require.NotNil(t, err)
	assert.Equal(t, errors.ErrorTypeSend, err.Type)

	sent, unsent, failed := s.counts()
	assert.Zero(t, sent)
	assert.Zero(t, unsent)
	assert.Equal(t, int64(3), failed)

	drained := s.drain()
	require.Len(t, drained, 3)
	for i, r := range drained {
		assert.Equal(t, int64(i), r[1].Data)
	}
}

func TestPipelineConservation(t *testing.T) {
	conns := []*recordingConn{
		{delay: time.Millisecond},
		{delay: time.Millisecond},
		{delay: time.Millisecond},
	}
	p := newTestPipeline(HashRoute(0, len(conns)), conns...)
	p.Start(context.Background())

	const n = 2000
	var accepted atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			assert.True(t, p.Enqueue(types.RawRow{int64(i % 7), int64(i)}))
			accepted.Add(1)
		}
	}()

	for {
		before := accepted.Load()
		st := p.Status()
		after := accepted.Load()
		total := st.SentRows + st.UnsentRows + st.SendFailedRows
		assert.GreaterOrEqual(t, total, before)
		assert.LessOrEqual(t, total, after+1)
		select {
		case <-done:
		default:
			continue
		}
		break
	}

	require.True(t, p.Shutdown(nil))
	st := p.Status()
	assert.Equal(t, int64(n), st.SentRows)
	assert.Zero(t, st.UnsentRows)
	assert.Zero(t, st.SendFailedRows)
	assert.True(t, st.IsExiting)
	assert.False(t, st.HasError())
	require.Len(t, st.ThreadStatus, len(conns)+2)
	assert.Equal(t, "conversion", st.ThreadStatus[0].Name)
	assert.Equal(t, "router", st.ThreadStatus[1].Name)
}

func TestPipelinePartitionOrdering(t *testing.T) {
	d, err := domain.New(domain.PartitionHash, types.TypeLong, domain.Scheme{Buckets: 2})
	require.NoError(t, err)

	conns := []*recordingConn{{}, {}}
	p := newTestPipeline(PartitionRoute(d, 0), conns...)
	p.Start(context.Background())

	keys := []int64{1, 2, 1, 3, 2, 1}
	for i, k := range keys {
		require.True(t, p.Enqueue(types.RawRow{k, int64(i)}))
	}
	require.True(t, p.Shutdown(nil))

	seqOf := func(rows []types.Row, key int64) []int64 {
		var out []int64
		for _, r := range rows {
			if r[0].Data == key {
				out = append(out, r[1].Data.(int64))
			}
		}
		return out
	}

	odd, even := conns[1].rows(), conns[0].rows()
	assert.Equal(t, []int64{0, 2, 5}, seqOf(odd, 1))
	assert.Equal(t, []int64{3}, seqOf(odd, 3))
	assert.Equal(t, []int64{1, 4}, seqOf(even, 2))
	assert.Empty(t, seqOf(even, 1))
	assert.Empty(t, seqOf(odd, 2))
}

func TestPipelineConversionFailure(t *testing.T) {
	conn := &recordingConn{}
	p := newTestPipeline(nil, conn)
	p.Start(context.Background())

	require.True(t, p.Enqueue(
		types.RawRow{int64(1), int64(0)},
		types.RawRow{int64(1), int64(1)},
		types.RawRow{"not a number", int64(2)},
		types.RawRow{int64(1), int64(3)},
	))
	require.Eventually(t, p.State().HasError, time.Second, time.Millisecond)

	st := p.Status()
	assert.True(t, st.IsExiting)
	assert.Equal(t, string(errors.ErrorTypeConversion), st.ErrorCode)
	assert.Equal(t, int64(4), st.SentRows+st.UnsentRows+st.SendFailedRows)
	assert.Equal(t, int64(2), st.ThreadStatus[0].SendFailedRows)

	assert.False(t, p.Enqueue(types.RawRow{int64(1), int64(4)}))
	require.True(t, p.Shutdown(nil))
	assert.False(t, p.Shutdown(nil))

	unwritten := p.Unwritten()
	sent := len(conn.rows())
	require.Equal(t, 4, sent+len(unwritten))
	require.GreaterOrEqual(t, len(unwritten), 2)
	tail := unwritten[len(unwritten)-2:]
	assert.Equal(t, "not a number", tail[0][0])
	assert.Equal(t, int64(3), tail[1][1])

	st = p.Status()
	assert.Zero(t, st.UnsentRows)
	assert.Zero(t, st.SendFailedRows)
}

func TestPipelineUnwrittenOrder(t *testing.T) {
	failing := &recordingConn{fail: stderrors.New("disk full")}
	p := newTestPipeline(SingleRoute, failing)
	p.Start(context.Background())

	require.True(t, p.Enqueue(types.RawRow{int64(1), int64(0)}))
	require.Eventually(t, p.State().HasError, time.Second, time.Millisecond)

	// Stages stop on the sticky error, so these rows stay in the
	// conversion queue.
	p.converter.Enqueue(types.RawRow{int64(1), int64(1)}, types.RawRow{int64(1), int64(2)})

	st := p.Status()
	assert.Equal(t, string(errors.ErrorTypeSend), st.ErrorCode)
	assert.Equal(t, int64(1), st.SendFailedRows)
	assert.Equal(t, int64(2), st.UnsentRows)

	require.True(t, p.Shutdown(nil))
	unwritten := p.Unwritten()
	require.Len(t, unwritten, 3)
	for i, r := range unwritten {
		assert.Equal(t, int64(i), r[1])
	}
	assert.Empty(t, p.Unwritten())
}

func TestWorkerIndex(t *testing.T) {
	assert.Equal(t, 0, WorkerIndex(-1, 4))
	assert.Equal(t, 1, WorkerIndex(5, 4))
	assert.Equal(t, 3, WorkerIndex(3, 4))
}

func TestStateStickyError(t *testing.T) {
	s := NewState()
	assert.False(t, s.IsExiting())
	assert.True(t, s.SetError(errors.New(errors.ErrorTypeSend, "first")))
	assert.False(t, s.SetError(errors.New(errors.ErrorTypeConversion, "second")))
	assert.Equal(t, "first", s.Err().Message)
	assert.True(t, s.IsExiting())

	s2 := NewState()
	assert.True(t, s2.BeginExit())
	assert.False(t, s2.BeginExit())
	s2.EndExit()
	assert.True(t, s2.IsExiting())
	assert.False(t, s2.BeginExit())
}
