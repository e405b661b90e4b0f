// Package mysql is a MySQL table store registered as the "mysql" driver.
//
// DBPath names the database and TableName the table. An empty TableName
// targets the table DBPath in the connection's default database.
// Partitioned tables report their partitioning from information_schema.
// Inserts are multi-row INSERT statements inside one transaction per batch.
package mysql

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/pool"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// maxPlaceholders is the prepared statement parameter limit.
const maxPlaceholders = 65535

var argsPool = pool.New(func() []any { return make([]any, 0, 4096) }, nil)

func init() {
	store.MustRegister("mysql", store.DialerFunc(func(ctx context.Context, opts store.ConnOptions) (store.Conn, error) {
		return Dial(ctx, opts)
	}))
}

// Conn is one MySQL connection.
type Conn struct {
	db     *sql.DB
	addr   string
	logger *zap.Logger
}

// Config builds the driver config for addr.
func Config(addr string, opts store.ConnOptions) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if opts.ConnectTimeout > 0 {
		cfg.Timeout = opts.ConnectTimeout
	}
	if opts.UseSSL {
		cfg.TLS = opts.TLSConfig
		if cfg.TLS == nil {
			host, _, _ := net.SplitHostPort(addr)
			cfg.TLS = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}
	}
	return cfg
}

// Dial connects to the first reachable address.
func Dial(ctx context.Context, opts store.ConnOptions) (*Conn, error) {
	l := logger.Component(opts.Logger, "mysql")
	var lastErr error
	for _, addr := range opts.Addrs() {
		connector, err := mysql.NewConnector(Config(addr, opts))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid MySQL config")
		}
		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			l.Warn("connect failed", zap.String("addr", addr), zap.Error(err))
			lastErr = err
			continue
		}
		l = l.With(zap.String("addr", addr))
		l.Debug("connected")
		return &Conn{db: db, addr: addr, logger: l}, nil
	}
	return nil, errors.Wrap(lastErr, errors.ErrorTypeConnection,
		fmt.Sprintf("Failed to connect to server %s", opts.Addr()))
}

func (c *Conn) names(ctx context.Context, dbPath, tableName string) (string, string, error) {
	if tableName != "" {
		return dbPath, tableName, nil
	}
	var db sql.NullString
	if err := c.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&db); err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeQuery, "failed to read the current database")
	}
	if !db.Valid {
		return "", "", errors.Newf(errors.ErrorTypeQuery, "no database selected for table %s", dbPath)
	}
	return db.String, dbPath, nil
}

// Schema implements store.Conn.
func (c *Conn) Schema(ctx context.Context, dbPath, tableName string) (*store.TableInfo, error) {
	db, tbl, err := c.names(ctx, dbPath, tableName)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, columnsQuery, db, tbl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read columns of "+db+"."+tbl)
	}
	schema := &types.TableSchema{}
	for rows.Next() {
		var name, dataType, columnType string
		if err := rows.Scan(&name, &dataType, &columnType); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan column")
		}
		dt, err := DataTypeOf(dataType, columnType)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "column "+name)
		}
		schema.Columns = append(schema.Columns, types.ColumnSchema{Name: name, Type: dt})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read columns of "+db+"."+tbl)
	}
	if schema.Len() == 0 {
		return nil, errors.Newf(errors.ErrorTypeQuery, "table %s.%s does not exist", db, tbl)
	}
	info := &store.TableInfo{Schema: schema}

	rows, err = c.db.QueryContext(ctx, partitionsQuery, db, tbl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read partitions of "+db+"."+tbl)
	}
	var (
		method, expr string
		descs        []string
	)
	for rows.Next() {
		var m, e, d sql.NullString
		if err := rows.Scan(&m, &e, &d); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan partition")
		}
		method, expr = m.String, e.String
		descs = append(descs, d.String)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read partitions of "+db+"."+tbl)
	}
	if len(descs) == 0 {
		return info, nil
	}

	key := partitionKey(expr)
	idx := schema.Index(key)
	if idx < 0 {
		c.logger.Warn("partition expression is not a column, table treated as unpartitioned",
			zap.String("table", db+"."+tbl), zap.String("expression", expr))
		return info, nil
	}
	pc, err := PartitionColumnOf(method, schema.Columns[idx], idx, descs)
	if err != nil {
		return nil, err
	}
	info.Partitioned = true
	info.Partitions = []store.PartitionColumn{pc}
	return info, nil
}

// Insert implements store.Conn.
func (c *Conn) Insert(ctx context.Context, target store.Target, batch *table.Batch) (int, error) {
	db, tbl, err := c.names(ctx, target.DBPath, target.TableName)
	if err != nil {
		return 0, err
	}
	cols := batch.Schema.Names()
	for _, col := range batch.Schema.Columns {
		if col.Type.IsArray() {
			return 0, errors.Newf(errors.ErrorTypeSend, "array column %s is not supported by MySQL", col.Name)
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSend, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	n := batch.NumRows()
	step := chunkRows(len(cols))
	total := 0
	for lo := 0; lo < n; lo += step {
		hi := min(lo+step, n)
		query := insertStatement(db, tbl, cols, hi-lo)
		args := argsPool.Get()
		for i := lo; i < hi; i++ {
			for j := range cols {
				args = append(args, argValue(batch.Value(i, j)))
			}
		}
		res, err := tx.ExecContext(ctx, query, args...)
		clear(args)
		argsPool.Put(args[:0])
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeSend, "failed to insert into "+db+"."+tbl)
		}
		affected, _ := res.RowsAffected()
		total += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSend, "failed to commit insert into "+db+"."+tbl)
	}
	return total, nil
}

// chunkRows returns how many rows of width cols fit one statement.
func chunkRows(cols int) int {
	if cols <= 0 {
		return 1
	}
	return max(maxPlaceholders/cols, 1)
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func insertStatement(db, tbl string, cols []string, rows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdent(db))
	sb.WriteByte('.')
	sb.WriteString(quoteIdent(tbl))
	sb.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c))
	}
	sb.WriteString(") VALUES ")
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}

// argValue returns a driver argument for v.
func argValue(v types.Value) any {
	if v.IsNull() {
		return nil
	}
	switch d := v.Data.(type) {
	case uuid.UUID:
		return d.String()
	case float32:
		return float64(d)
	}
	return v.Data
}

// Close implements store.Conn.
func (c *Conn) Close() error {
	c.logger.Debug("closing")
	return c.db.Close()
}
