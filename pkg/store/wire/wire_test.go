package wire

import (
	"bytes"
	"context"
	"net"
	"strconv"
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
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/testutil"
	"github.com/ajitpratap0/tablewriter/pkg/types"
	"github.com/ajitpratap0/tablewriter/pkg/writer"
)

func quoteSchema() *types.TableSchema {
	return &types.TableSchema{Columns: []types.ColumnSchema{
		{Name: "id", Type: types.TypeLong},
		{Name: "sym", Type: types.TypeSymbol},
		{Name: "price", Type: types.TypeDouble},
		{Name: "ts", Type: types.TypeTimestamp},
	}}
}

func rangePartitioned() *store.TableInfo {
	long := func(v int64) types.Value { return types.Value{Type: types.TypeLong, Data: v} }
	return &store.TableInfo{
		Schema:      quoteSchema(),
		Partitioned: true,
		Partitions: []store.PartitionColumn{
			{
				Name:          "id",
				Index:         0,
				Type:          types.TypeLong,
				PartitionType: domain.PartitionRange,
				Scheme:        domain.Scheme{Values: []types.Value{long(0), long(100), long(200), long(300)}},
			},
			{
				Name:          "sym",
				Index:         1,
				Type:          types.TypeSymbol,
				PartitionType: domain.PartitionValue,
				Scheme: domain.Scheme{Values: []types.Value{
					{Type: types.TypeSymbol, Data: "A"},
					{Type: types.TypeSymbol, Data: "B"},
				}},
			},
		},
	}
}

func startServer(t *testing.T, cfg ServerConfig) (*Server, store.ConnOptions) {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = memory.NewCatalog()
	}
	cfg.Logger = zap.NewNop()
	srv := NewServer(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return srv, store.ConnOptions{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		User:           cfg.User,
		Password:       cfg.Password,
		ConnectTimeout: time.Second,
		Logger:         zap.NewNop(),
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindInsert, []byte("payload")))
	require.NoError(t, WriteFrame(&buf, KindResponse, nil))

	kind, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindInsert, kind)
	assert.Equal(t, []byte("payload"), payload)

	kind, payload, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, kind)
	assert.Empty(t, payload)
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindSchema, []byte("abcdef")))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, _, err := ReadFrame(truncated)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
}

func TestSplitBlock(t *testing.T) {
	payload := appendBlock(appendBlock(nil, []byte("one")), nil)
	b, rest, err := splitBlock(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), b)
	b, rest, err = splitBlock(rest)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Empty(t, rest)

	_, _, err = splitBlock([]byte{0, 0, 0, 9, 1})
	assert.Error(t, err)
}

func TestSchemaRoundTrip(t *testing.T) {
	cat := memory.NewCatalog()
	_, err := cat.Create("dfs://quotes", "q", rangePartitioned())
	require.NoError(t, err)
	_, opts := startServer(t, ServerConfig{Catalog: cat})

	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	defer c.Close()

	info, err := c.Schema(context.Background(), "dfs://quotes", "q")
	require.NoError(t, err)
	assert.Equal(t, quoteSchema(), info.Schema)
	assert.True(t, info.Partitioned)
	require.Len(t, info.Partitions, 2)

	pc := info.Partitions[0]
	assert.Equal(t, domain.PartitionRange, pc.PartitionType)
	require.Len(t, pc.Scheme.Values, 4)
	assert.Equal(t, types.Value{Type: types.TypeLong, Data: int64(200)}, pc.Scheme.Values[2])
	syms := info.Partitions[1].Scheme.Values
	require.Len(t, syms, 2)
	assert.Equal(t, types.Value{Type: types.TypeSymbol, Data: "B"}, syms[1])

	_, err = c.Schema(context.Background(), "dfs://quotes", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestInsertCompressed(t *testing.T) {
	cat := memory.NewCatalog()
	tbl, err := cat.Create("mem", "", &store.TableInfo{Schema: quoteSchema()})
	require.NoError(t, err)
	_, opts := startServer(t, ServerConfig{Catalog: cat})
	opts.Compress = true

	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	defer c.Close()

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := make([]types.Row, 500)
	for i := range rows {
		rows[i] = types.Row{
			{Type: types.TypeLong, Data: int64(i)},
			{Type: types.TypeSymbol, Data: "S" + strconv.Itoa(i%5)},
			{Type: types.TypeDouble, Data: float64(i) / 4},
			{Type: types.TypeTimestamp, Data: ts.Add(time.Duration(i) * time.Millisecond)},
		}
	}
	rows[7][2] = types.Null(types.TypeDouble)

	batch, err := table.Build(quoteSchema(), rows)
	require.NoError(t, err)
	defer batch.Release()

	target := store.Target{
		DBPath:          "mem",
		CompressMethods: []compression.Method{compression.Delta, compression.LZ4, compression.None, compression.Delta},
	}
	n, err := c.Insert(context.Background(), target, batch)
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	got := tbl.Rows()
	require.Len(t, got, 500)
	assert.Equal(t, rows[42], got[42])
	assert.True(t, got[7][2].IsNull())
}

func TestLoginRejected(t *testing.T) {
	_, opts := startServer(t, ServerConfig{User: "admin", Password: "secret"})
	opts.Password = "wrong"
	_, err := Dial(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is incorrect")

	opts.Password = "secret"
	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestHighAvailabilityFailover(t *testing.T) {
	_, opts := startServer(t, ServerConfig{})
	site := opts.Addr()

	l, logs := testutil.ObservedLogger(zap.WarnLevel)
	opts.Logger = l
	opts.Port = testutil.ClosedPort(t)
	_, err := Dial(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	opts.HighAvailability = true
	opts.Sites = []string{site}
	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, site, c.addr)
	assert.GreaterOrEqual(t, logs.Len(), 1)
	assert.NoError(t, c.Close())
}

func TestWriterOverWire(t *testing.T) {
	cat := memory.NewCatalog()
	tbl, err := cat.Create("dfs://quotes", "q", rangePartitioned())
	require.NoError(t, err)
	_, conn := startServer(t, ServerConfig{Catalog: cat})

	opts := writer.DefaultOptions()
	opts.Driver = "wire"
	opts.Conn = conn
	opts.DBPath, opts.TableName = "dfs://quotes", "q"
	opts.ThreadCount, opts.PartitionCol = 3, "id"
	opts.BatchSize, opts.Throttle = 50, 5*time.Millisecond
	opts.CompressMethods = []compression.Method{compression.Delta, compression.LZ4, compression.LZ4, compression.Delta}
	opts.Logger = zap.NewNop()
	opts.DisableMetrics = true

	w, err := writer.New(context.Background(), opts)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		require.NoError(t, w.Insert(int64(i%300), "A", 1.5, base.Add(time.Duration(i)*time.Second)))
	}
	w.WaitForThreadCompletion()

	st := w.GetStatus()
	assert.False(t, st.HasError(), st.String())
	assert.Equal(t, int64(1000), st.SentRows)
	assert.Equal(t, 1000, tbl.Len())
}
