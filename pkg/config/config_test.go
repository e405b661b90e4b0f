package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
)

func validConfig() *WriterConfig {
	cfg := Default()
	cfg.Table.DBPath = "dfs://quotes"
	cfg.Table.TableName = "q"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*WriterConfig)
		want   string
	}{
		{"no driver", func(c *WriterConfig) { c.Connection.Driver = "" }, "connection.driver"},
		{"bad port", func(c *WriterConfig) { c.Connection.Port = 70000 }, "out of range"},
		{"no db path", func(c *WriterConfig) { c.Table.DBPath = "" }, "table.db_path"},
		{"zero threads", func(c *WriterConfig) { c.Performance.ThreadCount = 0 }, "thread_count"},
		{"zero batch", func(c *WriterConfig) { c.Performance.BatchSize = 0 }, "batch_size"},
		{"negative throttle", func(c *WriterConfig) { c.Performance.Throttle = -time.Second }, "throttle"},
		{"threads without partition col", func(c *WriterConfig) { c.Performance.ThreadCount = 2 }, "partition_col"},
		{"bad method", func(c *WriterConfig) { c.Table.CompressMethods = []string{"lz4", "zip"} }, "compress_methods"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMethods(t *testing.T) {
	tc := TableConfig{CompressMethods: []string{"LZ4", "delta", "", "none"}}
	got, err := tc.Methods()
	require.NoError(t, err)
	assert.Equal(t, []compression.Method{compression.LZ4, compression.Delta, compression.None, compression.None}, got)

	got, err = (&TableConfig{}).Methods()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseSubstitutesEnv(t *testing.T) {
	t.Setenv("TW_TEST_PASSWORD", "s3cret")
	t.Setenv("TW_TEST_HOST", "db1")
	cfg, err := Parse([]byte(`
connection:
  host: ${TW_TEST_HOST}
  password: ${TW_TEST_PASSWORD}
  user: ${TW_TEST_UNSET}
  connect_timeout: 3s
table:
  db_path: mem
`))
	require.NoError(t, err)
	assert.Equal(t, "db1", cfg.Connection.Host)
	assert.Equal(t, "s3cret", cfg.Connection.Password)
	assert.Empty(t, cfg.Connection.User)
	assert.Equal(t, 3*time.Second, cfg.Connection.ConnectTimeout)
	assert.Equal(t, 8848, cfg.Connection.Port)
	assert.Equal(t, "wire", cfg.Connection.Driver)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("table: [unclosed"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Parse([]byte("performance:\n  batch_size: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.yaml")
	cfg := validConfig()
	cfg.Performance.ThreadCount = 3
	cfg.Performance.Throttle = 150 * time.Millisecond
	cfg.Table.PartitionCol = "sym"
	cfg.Table.CompressMethods = []string{"lz4", "delta"}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Table, got.Table)
	assert.Equal(t, cfg.Performance, got.Performance)
	assert.Equal(t, cfg.Connection.ConnectTimeout, got.Connection.ConnectTimeout)
	assert.Equal(t, cfg.Observability.Tracing.BatchTimeout, got.Observability.Tracing.BatchTimeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTLSConfig(t *testing.T) {
	cc := ConnectionConfig{Host: "db1"}
	tc, err := cc.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tc)

	cc.UseSSL = true
	tc, err = cc.TLSConfig()
	require.NoError(t, err)
	assert.Equal(t, "db1", tc.ServerName)
	assert.Nil(t, tc.RootCAs)

	bad := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	cc.CAPath = bad
	_, err = cc.TLSConfig()
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TW_A", "x")
	assert.Equal(t, "x-x-${open", substituteEnvVars("${TW_A}-${TW_A}-${open"))
	assert.Equal(t, "plain", substituteEnvVars("plain"))
}
