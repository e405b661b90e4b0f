// Package postgres is a PostgreSQL table store registered as the
// "postgres" driver.
//
// DBPath names the schema and TableName the table; an empty TableName
// targets the table DBPath on the search path, typically a temporary
// table. Declaratively partitioned tables report their partition key and
// bounds, so a multithreaded writer routes rows by partition. Bulk inserts
// use COPY.
package postgres

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/store"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

func init() {
	store.MustRegister("postgres", store.DialerFunc(func(ctx context.Context, opts store.ConnOptions) (store.Conn, error) {
		return Dial(ctx, opts)
	}))
}

// Conn is one PostgreSQL connection.
type Conn struct {
	conn   *pgx.Conn
	logger *zap.Logger
}

// ConnConfig builds a pgx config from opts. With high availability the
// sites become fallback hosts tried in order.
func ConnConfig(opts store.ConnOptions) (*pgx.ConnConfig, error) {
	sslmode := "disable"
	if opts.UseSSL {
		sslmode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d sslmode=%s", opts.Host, opts.Port, sslmode)
	if opts.Database != "" {
		dsn += " dbname=" + quoteDSN(opts.Database)
	}
	if opts.User != "" {
		dsn += " user=" + quoteDSN(opts.User)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse PostgreSQL connection config")
	}
	cfg.Password = opts.Password
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.UseSSL && opts.TLSConfig != nil {
		cfg.TLSConfig = opts.TLSConfig
	}

	if opts.HighAvailability {
		for _, addr := range opts.Addrs()[1:] {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid site "+addr)
			}
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid site "+addr)
			}
			cfg.Fallbacks = append(cfg.Fallbacks, &pgconn.FallbackConfig{
				Host:      host,
				Port:      uint16(port),
				TLSConfig: cfg.TLSConfig,
			})
		}
	}
	return cfg, nil
}

func quoteDSN(s string) string {
	return "'" + escapeDSN(s) + "'"
}

func escapeDSN(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Dial opens a connection.
func Dial(ctx context.Context, opts store.ConnOptions) (*Conn, error) {
	cfg, err := ConnConfig(opts)
	if err != nil {
		return nil, err
	}
	pc, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("Failed to connect to server %s", opts.Addr()))
	}
	l := logger.Component(opts.Logger, "postgres").With(zap.String("host", pc.Config().Host))
	l.Debug("connected")
	return &Conn{conn: pc, logger: l}, nil
}

func relation(dbPath, tableName string) pgx.Identifier {
	if tableName == "" {
		return pgx.Identifier{dbPath}
	}
	return pgx.Identifier{dbPath, tableName}
}

// Schema implements store.Conn.
func (c *Conn) Schema(ctx context.Context, dbPath, tableName string) (*store.TableInfo, error) {
	rel := relation(dbPath, tableName).Sanitize()

	rows, err := c.conn.Query(ctx, columnsQuery, rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read columns of "+rel)
	}
	schema := &types.TableSchema{}
	for rows.Next() {
		var name, pgType string
		if err := rows.Scan(&name, &pgType); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan column")
		}
		dt, err := DataTypeOf(pgType)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, fmt.Sprintf("column %s", name))
		}
		schema.Columns = append(schema.Columns, types.ColumnSchema{Name: name, Type: dt})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read columns of "+rel)
	}
	if schema.Len() == 0 {
		return nil, errors.Newf(errors.ErrorTypeQuery, "table %s does not exist", rel)
	}
	info := &store.TableInfo{Schema: schema}

	var strategy, keyName string
	err = c.conn.QueryRow(ctx, partitionKeyQuery, rel).Scan(&strategy, &keyName)
	if errors.Is(err, pgx.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read partition key of "+rel)
	}

	var bounds []string
	rows, err = c.conn.Query(ctx, partitionBoundsQuery, rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read partitions of "+rel)
	}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan partition bound")
		}
		bounds = append(bounds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read partitions of "+rel)
	}

	idx := schema.Index(keyName)
	if idx < 0 {
		return nil, errors.Newf(errors.ErrorTypeQuery, "partition key %s is not a column of %s", keyName, rel)
	}
	pc, err := PartitionColumnOf(strategy, schema.Columns[idx], idx, bounds)
	if err != nil {
		return nil, err
	}
	info.Partitioned = true
	info.Partitions = []store.PartitionColumn{pc}
	return info, nil
}

// Insert implements store.Conn with COPY FROM.
func (c *Conn) Insert(ctx context.Context, target store.Target, batch *table.Batch) (int, error) {
	rel := relation(target.DBPath, target.TableName)
	n := batch.NumRows()
	cols := batch.Schema.Names()
	copied, err := c.conn.CopyFrom(ctx, rel, cols, pgx.CopyFromSlice(n, func(i int) ([]any, error) {
		row := make([]any, len(cols))
		for j := range row {
			row[j] = copyValue(batch.Value(i, j))
		}
		return row, nil
	}))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeSend, "failed to copy rows into "+rel.Sanitize())
	}
	return int(copied), nil
}

// copyValue returns a value pgx can encode for the column.
func copyValue(v types.Value) any {
	if v.IsNull() {
		return nil
	}
	switch d := v.Data.(type) {
	case uuid.UUID:
		return [16]byte(d)
	case int8:
		return int16(d)
	case []types.Value:
		out := make([]any, len(d))
		for i, e := range d {
			out[i] = copyValue(e)
		}
		return out
	}
	return v.Data
}

// Close implements store.Conn.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.logger.Debug("closing")
	return c.conn.Close(ctx)
}
