// Package memory implements an in-process table store. It backs the wire
// protocol server and serves as the store of tests.
//
// The package registers the "memory" driver over the Default catalog:
//
//	memory.Default.Create("trades", "", &store.TableInfo{Schema: schema})
//	w, err := writer.New(ctx, writer.Options{Driver: "memory", DBPath: "trades", ...})
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Default is the catalog served by the "memory" driver.
var Default = NewCatalog()

func init() {
	store.MustRegister("memory", Dialer(Default))
}

// InsertHook runs before rows are appended. A non-nil error rejects the
// whole insert.
type InsertHook func(rows []types.Row) error

// Table is one table of a catalog.
type Table struct {
	info *store.TableInfo

	mu   sync.RWMutex
	rows []types.Row
	hook InsertHook

	inserts atomic.Int64
}

// Info returns the table's schema and partitioning.
func (t *Table) Info() *store.TableInfo {
	return t.info
}

// SetHook installs h, replacing any previous hook.
func (t *Table) SetHook(h InsertHook) {
	t.mu.Lock()
	t.hook = h
	t.mu.Unlock()
}

// Append validates rows against the schema and appends them.
func (t *Table) Append(rows []types.Row) (int, error) {
	cols := t.info.Schema.Columns
	for _, r := range rows {
		if len(r) != len(cols) {
			return 0, errors.Newf(errors.ErrorTypeQuery,
				"The number of columns of the table to insert must be the same as that of the original table: %d", len(cols))
		}
		for i, v := range r {
			if v.Type != cols[i].Type {
				return 0, errors.Newf(errors.ErrorTypeQuery,
					"The data type of column '%s' is %s, got %s", cols[i].Name, cols[i].Type, v.Type)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hook != nil {
		if err := t.hook(rows); err != nil {
			return 0, err
		}
	}
	t.rows = append(t.rows, rows...)
	t.inserts.Add(1)
	return len(rows), nil
}

// Rows returns a copy of the stored rows.
func (t *Table) Rows() []types.Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.Row(nil), t.rows...)
}

// Len returns the number of stored rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Inserts returns the number of successful Append calls.
func (t *Table) Inserts() int64 {
	return t.inserts.Load()
}

// Catalog is a set of tables keyed by database path and table name.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

func key(dbPath, tableName string) string {
	return store.Target{DBPath: dbPath, TableName: tableName}.String()
}

// Create adds a table. An empty tableName creates the in-memory table
// dbPath.
func (c *Catalog) Create(dbPath, tableName string, info *store.TableInfo) (*Table, error) {
	if info == nil || info.Schema == nil || info.Schema.Len() == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "table schema must have at least one column")
	}
	if info.Partitioned && len(info.Partitions) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "partitioned table needs a partition column")
	}
	k := key(dbPath, tableName)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[k]; ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "table %s already exists", k)
	}
	t := &Table{info: info}
	c.tables[k] = t
	return t, nil
}

// Lookup returns the table at dbPath/tableName.
func (c *Catalog) Lookup(dbPath, tableName string) (*Table, error) {
	k := key(dbPath, tableName)
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[k]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeQuery, "table %s does not exist", k)
	}
	return t, nil
}

// Drop removes a table.
func (c *Catalog) Drop(dbPath, tableName string) {
	c.mu.Lock()
	delete(c.tables, key(dbPath, tableName))
	c.mu.Unlock()
}

// Tables returns the keys of every table.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for k := range c.tables {
		out = append(out, k)
	}
	return out
}

// Dialer returns a dialer whose connections read and write c.
func Dialer(c *Catalog) store.Dialer {
	return store.DialerFunc(func(ctx context.Context, _ store.ConnOptions) (store.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "dial cancelled")
		}
		return &conn{catalog: c}, nil
	})
}

type conn struct {
	catalog *Catalog
	closed  atomic.Bool
}

func (c *conn) Schema(_ context.Context, dbPath, tableName string) (*store.TableInfo, error) {
	if c.closed.Load() {
		return nil, errors.New(errors.ErrorTypeConnection, "connection is closed")
	}
	t, err := c.catalog.Lookup(dbPath, tableName)
	if err != nil {
		return nil, err
	}
	return t.Info(), nil
}

func (c *conn) Insert(ctx context.Context, target store.Target, batch *table.Batch) (int, error) {
	if c.closed.Load() {
		return 0, errors.New(errors.ErrorTypeConnection, "connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSend, "insert cancelled")
	}
	t, err := c.catalog.Lookup(target.DBPath, target.TableName)
	if err != nil {
		return 0, err
	}
	return t.Append(batch.Rows())
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}
