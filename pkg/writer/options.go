package writer

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/convert"
	"github.com/ajitpratap0/tablewriter/pkg/store"
)

// Options configures a Writer.
type Options struct {
	// Driver names a registered store backend. It is ignored when Dialer is set.
	Driver string
	// Dialer overrides the registry lookup.
	Dialer store.Dialer
	Conn   store.ConnOptions

	// DBPath and TableName identify the target table. An empty TableName
	// denotes the in-memory table DBPath.
	DBPath    string
	TableName string

	BatchSize   int
	Throttle    time.Duration
	ThreadCount int
	// PartitionCol is required when ThreadCount > 1.
	PartitionCol    string
	CompressMethods []compression.Method

	// Convert replaces the default value converter. Guard wraps every
	// conversion call.
	Convert convert.Func
	Guard   convert.Guard

	Logger *zap.Logger
	// DisableMetrics skips Prometheus collection.
	DisableMetrics bool
}

// DefaultOptions returns options for a single-threaded writer sending every
// row as soon as it is seen.
func DefaultOptions() Options {
	return Options{
		Driver:      "wire",
		BatchSize:   1,
		ThreadCount: 1,
		Conn: store.ConnOptions{
			Host:           "localhost",
			Port:           8848,
			ConnectTimeout: 10 * time.Second,
		},
	}
}
