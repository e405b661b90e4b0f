// Package store defines the contract between the writer and a remote table
// store: connect, look up a table's schema and partitioning once, run bulk
// inserts of materialized batches, close.
//
// Backends live in sub-packages and register a Dialer under a driver name:
//
//	import _ "github.com/ajitpratap0/tablewriter/pkg/store/postgres"
//
//	dialer, err := store.Lookup("postgres")
package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/domain"
	"github.com/ajitpratap0/tablewriter/pkg/table"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// ConnOptions are the connection parameters used once per sender.
type ConnOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	// Database is the backend database name for SQL stores.
	Database string
	UseSSL   bool
	// TLSConfig is used when UseSSL is set. Nil means a default config
	// verifying Host.
	TLSConfig *tls.Config
	// Compress tells the store that batches carry compressed column blocks.
	Compress bool
	// HighAvailability enables failover to Sites when Host is unreachable.
	HighAvailability bool
	Sites            []string
	ConnectTimeout   time.Duration
	Logger           *zap.Logger
}

// Addr returns host:port.
func (o ConnOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Addrs returns the primary address followed by the failover sites when
// high availability is enabled.
func (o ConnOptions) Addrs() []string {
	addrs := []string{o.Addr()}
	if o.HighAvailability {
		for _, s := range o.Sites {
			if s != "" && s != addrs[0] {
				addrs = append(addrs, s)
			}
		}
	}
	return addrs
}

// PartitionColumn describes one partitioning column of a table.
type PartitionColumn struct {
	Name          string               `json:"name"`
	Index         int                  `json:"index"`
	Type          types.DataType       `json:"type"`
	PartitionType domain.PartitionType `json:"partition_type"`
	Scheme        domain.Scheme        `json:"scheme"`
}

// TableInfo is the result of a schema lookup. A composite partitioned
// table reports one PartitionColumn per level.
type TableInfo struct {
	Schema      *types.TableSchema `json:"schema"`
	Partitioned bool               `json:"partitioned"`
	Partitions  []PartitionColumn  `json:"partitions,omitempty"`
}

// PartitionColumnNamed returns the partition column called name.
func (ti *TableInfo) PartitionColumnNamed(name string) (PartitionColumn, bool) {
	for _, p := range ti.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return PartitionColumn{}, false
}

// Target identifies the table a bulk insert writes to. An empty TableName
// denotes the in-memory table named by DBPath.
type Target struct {
	DBPath          string
	TableName       string
	CompressMethods []compression.Method
}

// InMemory reports whether the target is an in-memory table.
func (t Target) InMemory() bool {
	return t.TableName == ""
}

func (t Target) String() string {
	if t.InMemory() {
		return t.DBPath
	}
	return fmt.Sprintf("%s/%s", t.DBPath, t.TableName)
}

// Conn is one connection to a store. A Conn is used by one goroutine at a
// time.
type Conn interface {
	// Schema returns the columns and partitioning of a table.
	Schema(ctx context.Context, dbPath, tableName string) (*TableInfo, error)
	// Insert appends the batch to target and returns the number of rows
	// the store accepted.
	Insert(ctx context.Context, target Target, batch *table.Batch) (int, error)
	Close() error
}

// Dialer opens connections to a store.
type Dialer interface {
	Dial(ctx context.Context, opts ConnOptions) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, opts ConnOptions) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, opts ConnOptions) (Conn, error) {
	return f(ctx, opts)
}
