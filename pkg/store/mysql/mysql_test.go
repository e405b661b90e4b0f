package mysql

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/testutil"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

func TestDataTypeOf(t *testing.T) {
	tests := []struct {
		dataType, columnType string
		want                 types.DataType
	}{
		{"tinyint", "tinyint(1)", types.TypeBool},
		{"tinyint", "tinyint(4)", types.TypeChar},
		{"smallint", "smallint(6)", types.TypeShort},
		{"int", "int(11)", types.TypeInt},
		{"bigint", "bigint(20) unsigned", types.TypeLong},
		{"float", "float", types.TypeFloat},
		{"decimal", "decimal(10,2)", types.TypeDouble},
		{"varchar", "varchar(64)", types.TypeString},
		{"enum", "enum('a','b')", types.TypeSymbol},
		{"varbinary", "varbinary(16)", types.TypeBlob},
		{"date", "date", types.TypeDate},
		{"datetime", "datetime(3)", types.TypeTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.columnType, func(t *testing.T) {
			got, err := DataTypeOf(tt.dataType, tt.columnType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DataTypeOf("json", "json")
	assert.Error(t, err)
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "id", partitionKey("`id`"))
	assert.Equal(t, "region", partitionKey("`region`,`day`"))
	assert.Equal(t, "id", partitionKey("id"))
}

func TestPartitionColumnOf(t *testing.T) {
	long := types.ColumnSchema{Name: "id", Type: types.TypeLong}

	pc, err := PartitionColumnOf("HASH", long, 0, []string{"", "", ""})
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionHash, pc.PartitionType)
	assert.Equal(t, 3, pc.Scheme.Buckets)

	pc, err = PartitionColumnOf("RANGE", long, 0, []string{"100", "200", "MAXVALUE"})
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionRange, pc.PartitionType)
	assert.Equal(t, []types.Value{
		{Type: types.TypeLong, Data: int64(100)},
		{Type: types.TypeLong, Data: int64(200)},
	}, pc.Scheme.Values)

	day := types.ColumnSchema{Name: "day", Type: types.TypeDate}
	pc, err = PartitionColumnOf("RANGE COLUMNS", day, 1, []string{"'2024-02-01'", "'2024-01-01'"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), pc.Scheme.Values[0].Data)

	sym := types.ColumnSchema{Name: "sym", Type: types.TypeString}
	pc, err = PartitionColumnOf("LIST COLUMNS", sym, 2, []string{"'a','b'", "'c'"})
	require.NoError(t, err)
	assert.Equal(t, domain.PartitionList, pc.PartitionType)
	require.Len(t, pc.Scheme.Groups, 2)
	assert.Equal(t, "b", pc.Scheme.Groups[0][1].Data)

	_, err = PartitionColumnOf("RANGE", long, 0, []string{"MAXVALUE"})
	assert.Error(t, err)
	_, err = PartitionColumnOf("SYSTEM_TIME", long, 0, []string{""})
	assert.Error(t, err)
}

func TestInsertStatement(t *testing.T) {
	got := insertStatement("db", "t`x", []string{"a", "b"}, 2)
	assert.Equal(t, "INSERT INTO `db`.`t``x` (`a`, `b`) VALUES (?, ?), (?, ?)", got)
}

func TestChunkRows(t *testing.T) {
	assert.Equal(t, 65535, chunkRows(1))
	assert.Equal(t, 16383, chunkRows(4))
	assert.Equal(t, 1, chunkRows(70000))
}

func TestArgValue(t *testing.T) {
	id := uuid.New()
	assert.Nil(t, argValue(types.Null(types.TypeInt)))
	assert.Equal(t, id.String(), argValue(types.Value{Type: types.TypeUUID, Data: id}))
	assert.Equal(t, float64(1.5), argValue(types.Value{Type: types.TypeFloat, Data: float32(1.5)}))
	assert.Equal(t, int64(3), argValue(types.Value{Type: types.TypeLong, Data: int64(3)}))
}

func TestConfig(t *testing.T) {
	cfg := Config("db1:3306", store.ConnOptions{
		User:           "root",
		Password:       "pw",
		Database:       "quotes",
		UseSSL:         true,
		ConnectTimeout: 2 * time.Second,
	})
	assert.Equal(t, "db1:3306", cfg.Addr)
	assert.Equal(t, "quotes", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.TLS)
	assert.Equal(t, "db1", cfg.TLS.ServerName)
}

func TestDialUnreachable(t *testing.T) {
	port := testutil.ClosedPort(t)
	l, logs := testutil.ObservedLogger(zap.WarnLevel)

	_, err := Dial(testutil.Context(t), store.ConnOptions{
		Host:           "127.0.0.1",
		Port:           port,
		ConnectTimeout: 200 * time.Millisecond,
		Logger:         l,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to connect to server 127.0.0.1:"+strconv.Itoa(port))
	assert.Equal(t, 1, logs.FilterMessage("connect failed").Len())
}

// TestMySQLRoundTrip runs against a live server named by
// TABLEWRITER_TEST_MYSQL (host:port, user root, database test).
func TestMySQLRoundTrip(t *testing.T) {
	addr := os.Getenv("TABLEWRITER_TEST_MYSQL")
	if addr == "" {
		t.Skip("TABLEWRITER_TEST_MYSQL not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx := context.Background()
	c, err := Dial(ctx, store.ConnOptions{
		Host: host, Port: port, User: "root", Password: os.Getenv("MYSQL_PWD"),
		Database: "test", Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.db.ExecContext(ctx, "DROP TABLE IF EXISTS tw_quotes")
	require.NoError(t, err)
	_, err = c.db.ExecContext(ctx, "CREATE TABLE tw_quotes (id BIGINT, sym VARCHAR(8)) PARTITION BY HASH (id) PARTITIONS 4")
	require.NoError(t, err)

	info, err := c.Schema(ctx, "tw_quotes", "")
	require.NoError(t, err)
	require.True(t, info.Partitioned)
	assert.Equal(t, 4, info.Partitions[0].Scheme.Buckets)

	batch, err := table.Build(info.Schema, []types.Row{
		{{Type: types.TypeLong, Data: int64(1)}, {Type: types.TypeString, Data: "A"}},
		{{Type: types.TypeLong, Data: int64(2)}, types.Null(types.TypeString)},
	})
	require.NoError(t, err)
	defer batch.Release()
	n, err := c.Insert(ctx, store.Target{DBPath: "test", TableName: "tw_quotes"}, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
