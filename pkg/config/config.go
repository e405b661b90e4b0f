package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/observability"
)

// WriterConfig is the configuration of one writer.
type WriterConfig struct {
	// Name identifies the writer in logs and metrics
	Name string `yaml:"name" json:"name"`

	Connection    ConnectionConfig    `yaml:"connection" json:"connection"`
	Table         TableConfig         `yaml:"table" json:"table"`
	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ConnectionConfig describes how senders reach the store.
type ConnectionConfig struct {
	// Driver names a registered store backend (wire, memory, postgres, mysql)
	Driver   string `yaml:"driver" json:"driver"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	// Database is the backend database for SQL stores
	Database string `yaml:"database" json:"database"`

	UseSSL        bool   `yaml:"use_ssl" json:"use_ssl"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify" json:"tls_skip_verify"`
	CAPath        string `yaml:"ca_path" json:"ca_path"`

	// HighAvailability enables failover to Sites, given as host:port
	HighAvailability bool     `yaml:"high_availability" json:"high_availability"`
	Sites            []string `yaml:"sites" json:"sites"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// TableConfig identifies the target table.
type TableConfig struct {
	DBPath string `yaml:"db_path" json:"db_path"`
	// TableName is empty for an in-memory table
	TableName    string `yaml:"table_name" json:"table_name"`
	PartitionCol string `yaml:"partition_col" json:"partition_col"`
	// CompressMethods holds one of none, lz4 or delta per column
	CompressMethods []string `yaml:"compress_methods" json:"compress_methods"`
}

// PerformanceConfig controls batching and parallelism.
type PerformanceConfig struct {
	BatchSize   int           `yaml:"batch_size" json:"batch_size"`
	Throttle    time.Duration `yaml:"throttle" json:"throttle"`
	ThreadCount int           `yaml:"thread_count" json:"thread_count"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging       logger.Config               `yaml:"logging" json:"logging"`
	EnableMetrics bool                        `yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddr   string                      `yaml:"metrics_addr" json:"metrics_addr"`
	Tracing       observability.TracingConfig `yaml:"tracing" json:"tracing"`
}

// Default returns a configuration for a single-threaded writer on a local
// wire server.
func Default() *WriterConfig {
	return &WriterConfig{
		Name: "tablewriter",
		Connection: ConnectionConfig{
			Driver:         "wire",
			Host:           "localhost",
			Port:           8848,
			ConnectTimeout: 10 * time.Second,
		},
		Performance: PerformanceConfig{
			BatchSize:   1,
			ThreadCount: 1,
		},
		Observability: ObservabilityConfig{
			Logging:       logger.Config{Level: "info", Encoding: "json"},
			EnableMetrics: true,
			MetricsAddr:   ":9090",
			Tracing:       observability.DefaultTracingConfig(),
		},
	}
}

// Validate checks required fields and ranges. It mirrors the writer's own
// parameter checks so a bad file fails before any connection is made.
func (c *WriterConfig) Validate() error {
	if c.Connection.Driver == "" {
		return errors.New(errors.ErrorTypeConfig, "connection.driver is required")
	}
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		return errors.Newf(errors.ErrorTypeConfig, "connection.port %d is out of range", c.Connection.Port)
	}
	if c.Table.DBPath == "" {
		return errors.New(errors.ErrorTypeConfig, "table.db_path is required")
	}
	if c.Performance.ThreadCount < 1 {
		return errors.New(errors.ErrorTypeConfig, "performance.thread_count must be greater than or equal to 1")
	}
	if c.Performance.BatchSize < 1 {
		return errors.New(errors.ErrorTypeConfig, "performance.batch_size must be greater than or equal to 1")
	}
	if c.Performance.Throttle < 0 {
		return errors.New(errors.ErrorTypeConfig, "performance.throttle must be greater than or equal to 0")
	}
	if c.Performance.ThreadCount > 1 && c.Table.PartitionCol == "" {
		return errors.New(errors.ErrorTypeConfig, "table.partition_col must be specified when performance.thread_count is greater than 1")
	}
	if _, err := c.Table.Methods(); err != nil {
		return err
	}
	return nil
}

// Methods parses CompressMethods.
func (t *TableConfig) Methods() ([]compression.Method, error) {
	if len(t.CompressMethods) == 0 {
		return nil, nil
	}
	out := make([]compression.Method, len(t.CompressMethods))
	for i, name := range t.CompressMethods {
		m, err := compression.ParseMethod(name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "table.compress_methods")
		}
		out[i] = m
	}
	return out, nil
}

// TLSConfig returns the client TLS config, or nil when SSL is off.
func (c *ConnectionConfig) TLSConfig() (*tls.Config, error) {
	if !c.UseSSL {
		return nil, nil
	}
	cfg := &tls.Config{
		ServerName:         c.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLSSkipVerify, //nolint:gosec // opt-in for test servers
	}
	if c.CAPath != "" {
		pem, err := os.ReadFile(c.CAPath) //nolint:gosec // G304: path comes from the operator's config
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read ca_path")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Newf(errors.ErrorTypeConfig, "no certificates found in %s", c.CAPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
