package writer

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/store/memory"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

func testSchema() *types.TableSchema {
	return &types.TableSchema{Columns: []types.ColumnSchema{
		{Name: "key", Type: types.TypeLong},
		{Name: "seq", Type: types.TypeLong},
		{Name: "sym", Type: types.TypeSymbol},
		{Name: "tags", Type: types.ArrayOf(types.TypeInt)},
	}}
}

func hashPartitioned(buckets int) *store.TableInfo {
	return &store.TableInfo{
		Schema:      testSchema(),
		Partitioned: true,
		Partitions: []store.PartitionColumn{{
			Name:          "key",
			Index:         0,
			Type:          types.TypeLong,
			PartitionType: domain.PartitionHash,
			Scheme:        domain.Scheme{Buckets: buckets},
		}},
	}
}

// newCatalog returns a catalog holding an in-memory table "mem", a
// partitioned table "dfs://db/pt" and a dimension table "dfs://db/dim".
func newCatalog(t *testing.T) *memory.Catalog {
	t.Helper()
	cat := memory.NewCatalog()
	_, err := cat.Create("mem", "", &store.TableInfo{Schema: testSchema()})
	require.NoError(t, err)
	_, err = cat.Create("dfs://db", "pt", hashPartitioned(2))
	require.NoError(t, err)
	_, err = cat.Create("dfs://db", "dim", &store.TableInfo{Schema: testSchema()})
	require.NoError(t, err)
	return cat
}

func testOptions(cat *memory.Catalog) Options {
	opts := DefaultOptions()
	opts.Dialer = memory.Dialer(cat)
	opts.DBPath = "mem"
	opts.Logger = zap.NewNop()
	opts.DisableMetrics = true
	return opts
}

func lookup(t *testing.T, cat *memory.Catalog, dbPath, tableName string) *memory.Table {
	t.Helper()
	tbl, err := cat.Lookup(dbPath, tableName)
	require.NoError(t, err)
	return tbl
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		want   string
	}{
		{"zero threads", func(o *Options) { o.ThreadCount = 0 }, "threadCount must be greater than or equal to 1"},
		{"zero batch", func(o *Options) { o.BatchSize = 0 }, "batchSize must be greater than or equal to 1"},
		{"negative throttle", func(o *Options) { o.Throttle = -time.Millisecond }, "throttle must be greater than or equal to 0"},
		{"missing partitionCol", func(o *Options) { o.ThreadCount = 2 }, "partitionCol must be specified"},
		{"bad compression", func(o *Options) {
			o.CompressMethods = []compression.Method{"zip", "", "", ""}
		}, "Unsupported compression method"},
		{"dimension table", func(o *Options) {
			o.DBPath, o.TableName = "dfs://db", "dim"
			o.ThreadCount, o.PartitionCol = 2, "key"
		}, "threadCount must be 1 for a dimension table"},
		{"compress count", func(o *Options) {
			o.CompressMethods = []compression.Method{compression.LZ4}
		}, "does not match the column size 4"},
		{"delta on symbol", func(o *Options) {
			o.CompressMethods = []compression.Method{compression.Delta, compression.Delta, compression.Delta, compression.None}
		}, "not supported for column 'sym'"},
		{"wrong partition column", func(o *Options) {
			o.DBPath, o.TableName = "dfs://db", "pt"
			o.ThreadCount, o.PartitionCol = 2, "seq"
		}, "must be the partitioning column 'key'"},
		{"unknown hash column", func(o *Options) {
			o.ThreadCount, o.PartitionCol = 2, "nope"
		}, "No match found for nope"},
		{"array hash column", func(o *Options) {
			o.ThreadCount, o.PartitionCol = 2, "tags"
		}, "cannot be array vector"},
		{"missing table", func(o *Options) { o.DBPath = "absent" }, "failed to load the schema"},
		{"unknown driver", func(o *Options) {
			o.Dialer = nil
			o.Driver = "carrier-pigeon"
		}, "unknown store driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(newCatalog(t))
			tt.modify(&opts)
			w, err := New(context.Background(), opts)
			require.Error(t, err)
			assert.Nil(t, w)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewClosesConnectionsOnDialFailure(t *testing.T) {
	cat := newCatalog(t)
	var dials, opened, closes atomic.Int32
	inner := memory.Dialer(cat)
	opts := testOptions(cat)
	opts.ThreadCount, opts.PartitionCol = 4, "key"
	opts.Dialer = store.DialerFunc(func(ctx context.Context, co store.ConnOptions) (store.Conn, error) {
		if dials.Add(1) == 3 {
			return nil, stderrors.New("connection refused")
		}
		c, err := inner.Dial(ctx, co)
		if err != nil {
			return nil, err
		}
		opened.Add(1)
		return &closeCounter{Conn: c, closes: &closes}, nil
	})

	_, err := New(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "Failed to connect to server")
	assert.Equal(t, opened.Load(), closes.Load())
}

type closeCounter struct {
	store.Conn
	closes *atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

func TestWriterDrainCompleteness(t *testing.T) {
	cat := newCatalog(t)
	opts := testOptions(cat)
	opts.ThreadCount, opts.PartitionCol = 4, "sym"
	opts.BatchSize, opts.Throttle = 100, 10*time.Millisecond
	w, err := New(context.Background(), opts)
	require.NoError(t, err)

	const producers, perProducer = 4, 2500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				err := w.Insert(int64(p), int64(i), fmt.Sprintf("s%d", i%13), []int32{int32(i)})
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()
	w.WaitForThreadCompletion()

	st := w.GetStatus()
	assert.Equal(t, int64(producers*perProducer), st.SentRows)
	assert.Zero(t, st.UnsentRows)
	assert.Zero(t, st.SendFailedRows)
	assert.False(t, st.HasError())
	assert.Len(t, st.ThreadStatus, 6)
	assert.Equal(t, producers*perProducer, lookup(t, cat, "mem", "").Len())
	assert.Empty(t, w.GetUnwrittenData())
}

func TestWriterConcurrentWaitJoinsSenders(t *testing.T) {
	cat := newCatalog(t)
	tbl := lookup(t, cat, "mem", "")
	tbl.SetHook(func(rows []types.Row) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	w, err := New(context.Background(), testOptions(cat))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Insert(int64(i), int64(i), "a", []int32{1}))
	}

	check := func() {
		st := w.GetStatus()
		assert.Equal(t, int64(5), st.SentRows)
		assert.Zero(t, st.UnsentRows)
		assert.Empty(t, w.GetUnwrittenData())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.WaitForThreadCompletion()
		check()
	}()
	time.Sleep(20 * time.Millisecond)
	w.WaitForThreadCompletion()
	check()
	<-done
	assert.Equal(t, 5, tbl.Len())
}

func TestWriterFailFast(t *testing.T) {
	cat := newCatalog(t)
	tbl := lookup(t, cat, "dfs://db", "pt")
	tbl.SetHook(func(rows []types.Row) error {
		if rows[0][0].Data.(int64)%2 == 0 {
			return stderrors.New("partition offline")
		}
		return nil
	})

	opts := testOptions(cat)
	opts.DBPath, opts.TableName = "dfs://db", "pt"
	opts.ThreadCount, opts.PartitionCol = 2, "key"
	w, err := New(context.Background(), opts)
	require.NoError(t, err)

	accepted := 0
	for i := 0; i < 20; i++ {
		if err := w.Insert(int64(i), int64(i), "x", nil); err != nil {
			assert.True(t, errors.IsType(err, errors.ErrorTypeExit))
			break
		}
		accepted++
	}
	require.Eventually(t, func() bool { return w.GetStatus().IsExiting }, time.Second, time.Millisecond)

	st := w.GetStatus()
	assert.Equal(t, string(errors.ErrorTypeSend), st.ErrorCode)
	assert.Contains(t, st.ErrorMessage, "partition offline")
	assert.Equal(t, int64(accepted), st.SentRows+st.UnsentRows+st.SendFailedRows)

	err = w.Insert(int64(1), int64(100), "x", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExit))

	w.WaitForThreadCompletion()
	unwritten := w.GetUnwrittenData()
	assert.Equal(t, accepted, tbl.Len()+len(unwritten))
	assert.NotEmpty(t, unwritten)

	// Resubmit through a fresh writer once the partition is back.
	tbl.SetHook(nil)
	w2, err := New(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, w2.InsertUnwrittenData(unwritten))
	w2.WaitForThreadCompletion()
	assert.Equal(t, accepted, tbl.Len())
	assert.False(t, w2.GetStatus().HasError())
}

func TestWriterPartitionOrdering(t *testing.T) {
	cat := newCatalog(t)
	opts := testOptions(cat)
	opts.DBPath, opts.TableName = "dfs://db", "pt"
	opts.ThreadCount, opts.PartitionCol = 2, "key"
	w, err := New(context.Background(), opts)
	require.NoError(t, err)

	for i, k := range []int64{1, 2, 1, 3, 2, 1} {
		require.NoError(t, w.Insert(k, int64(i), "x", nil))
	}
	w.WaitForThreadCompletion()

	seqs := map[int64][]int64{}
	for _, r := range lookup(t, cat, "dfs://db", "pt").Rows() {
		k := r[0].Data.(int64)
		seqs[k] = append(seqs[k], r[1].Data.(int64))
	}
	assert.Equal(t, []int64{0, 2, 5}, seqs[1])
	assert.Equal(t, []int64{1, 4}, seqs[2])
	assert.Equal(t, []int64{3}, seqs[3])
}

func TestWriterThrottle(t *testing.T) {
	cat := newCatalog(t)
	opts := testOptions(cat)
	opts.BatchSize, opts.Throttle = 1000, 50*time.Millisecond
	w, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer w.WaitForThreadCompletion()

	tbl := lookup(t, cat, "mem", "")
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Insert(int64(i), int64(i), "x", nil))
	}
	require.Eventually(t, func() bool { return tbl.Len() == 10 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(1), tbl.Inserts())
}

func TestWriterInsertValidation(t *testing.T) {
	cat := newCatalog(t)
	w, err := New(context.Background(), testOptions(cat))
	require.NoError(t, err)

	err = w.Insert(int64(1), int64(2))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "Column counts don't match 2")

	err = w.InsertUnwrittenData([]types.RawRow{{int64(1), int64(2), "a", nil}, {int64(1)}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	assert.False(t, w.GetStatus().IsExiting)
	require.NoError(t, w.Insert(int64(1), int64(2), "a", nil))

	w.WaitForThreadCompletion()
	w.WaitForThreadCompletion()
	assert.Equal(t, 1, lookup(t, cat, "mem", "").Len())

	err = w.Insert(int64(1), int64(3), "a", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExit))
	assert.True(t, w.GetStatus().IsExiting)
}

func TestWriterConversionError(t *testing.T) {
	cat := newCatalog(t)
	w, err := New(context.Background(), testOptions(cat))
	require.NoError(t, err)

	require.NoError(t, w.Insert(int64(1), int64(0), "a", nil))
	require.NoError(t, w.Insert("one", int64(1), "a", nil))
	require.Eventually(t, func() bool { return w.GetStatus().HasError() }, time.Second, time.Millisecond)

	st := w.GetStatus()
	assert.Equal(t, string(errors.ErrorTypeConversion), st.ErrorCode)
	assert.Equal(t, int64(1), st.ThreadStatus[0].SendFailedRows)

	w.WaitForThreadCompletion()
	unwritten := w.GetUnwrittenData()
	require.NotEmpty(t, unwritten)
	assert.Equal(t, "one", unwritten[len(unwritten)-1][0])
	assert.Equal(t, 2, lookup(t, cat, "mem", "").Len()+len(unwritten))
}

func TestWriterRegisteredDriver(t *testing.T) {
	_, err := memory.Default.Create("registered", "", &store.TableInfo{Schema: testSchema()})
	require.NoError(t, err)
	defer memory.Default.Drop("registered", "")

	opts := DefaultOptions()
	opts.Driver = "memory"
	opts.DBPath = "registered"
	opts.Logger = zap.NewNop()
	w, err := New(context.Background(), opts)
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, 4, w.Schema().Len())

	require.NoError(t, w.Insert(int64(7), int64(0), "z", []int32{1, 2}))
	w.WaitForThreadCompletion()
	assert.Equal(t, int64(1), w.GetStatus().SentRows)
}
