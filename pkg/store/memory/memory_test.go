package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

func pairSchema() *types.TableSchema {
	return &types.TableSchema{Columns: []types.ColumnSchema{
		{Name: "id", Type: types.TypeLong},
		{Name: "name", Type: types.TypeString},
	}}
}

func pair(id int64, name string) types.Row {
	return types.Row{{Type: types.TypeLong, Data: id}, {Type: types.TypeString, Data: name}}
}

func TestCatalogCreateLookup(t *testing.T) {
	c := NewCatalog()
	_, err := c.Create("mem", "", &store.TableInfo{Schema: pairSchema()})
	require.NoError(t, err)

	_, err = c.Create("mem", "", &store.TableInfo{Schema: pairSchema()})
	assert.Error(t, err)
	_, err = c.Create("dfs://db", "t", &store.TableInfo{Schema: &types.TableSchema{}})
	assert.Error(t, err)
	_, err = c.Create("dfs://db", "t", &store.TableInfo{Schema: pairSchema(), Partitioned: true})
	assert.Error(t, err)

	tbl, err := c.Lookup("mem", "")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Info().Schema.Len())
	assert.Equal(t, []string{"mem"}, c.Tables())

	c.Drop("mem", "")
	_, err = c.Lookup("mem", "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
	assert.Contains(t, err.Error(), "table mem does not exist")
}

func TestTableAppend(t *testing.T) {
	c := NewCatalog()
	tbl, err := c.Create("mem", "", &store.TableInfo{Schema: pairSchema()})
	require.NoError(t, err)

	n, err := tbl.Append([]types.Row{pair(1, "a"), pair(2, "b")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = tbl.Append([]types.Row{{{Type: types.TypeLong, Data: int64(3)}}})
	assert.Error(t, err)
	_, err = tbl.Append([]types.Row{{{Type: types.TypeInt, Data: int32(3)}, {Type: types.TypeString, Data: "c"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column 'id'")

	tbl.SetHook(func(rows []types.Row) error {
		return errors.New(errors.ErrorTypeQuery, "rejected")
	})
	_, err = tbl.Append([]types.Row{pair(4, "d")})
	assert.Error(t, err)
	tbl.SetHook(nil)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, int64(1), tbl.Inserts())
	assert.Equal(t, pair(2, "b"), tbl.Rows()[1])
}

func TestDialerConn(t *testing.T) {
	c := NewCatalog()
	tbl, err := c.Create("dfs://db", "t", &store.TableInfo{Schema: pairSchema()})
	require.NoError(t, err)

	conn, err := Dialer(c).Dial(context.Background(), store.ConnOptions{})
	require.NoError(t, err)

	info, err := conn.Schema(context.Background(), "dfs://db", "t")
	require.NoError(t, err)
	assert.Equal(t, pairSchema(), info.Schema)

	batch, err := table.Build(pairSchema(), []types.Row{pair(7, "x")})
	require.NoError(t, err)
	defer batch.Release()
	n, err := conn.Insert(context.Background(), store.Target{DBPath: "dfs://db", TableName: "t"}, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tbl.Len())

	require.NoError(t, conn.Close())
	_, err = conn.Insert(context.Background(), store.Target{DBPath: "dfs://db", TableName: "t"}, batch)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Dialer(c).Dial(ctx, store.ConnOptions{})
	assert.Error(t, err)
}
