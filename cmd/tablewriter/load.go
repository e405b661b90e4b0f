package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/config"
	"github.com/ajitpratap0/tablewriter/pkg/json"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/observability"
	"github.com/ajitpratap0/tablewriter/pkg/types"
	"github.com/ajitpratap0/tablewriter/pkg/writer"
)

// maxLine bounds one input row.
const maxLine = 16 << 20

func newLoadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk-load JSON-lines rows into a table",
		Long: `Bulk-load rows into a table. Each input line is a JSON array of column
values in table order, or a JSON object keyed by column name. Flags override
the YAML config; every flag can also be set as TABLEWRITER_<FLAG>.

Rows the writer could not send are written to --unwritten as JSON lines and
the command fails.

Example:
  tablewriter load --config writer.yaml --input quotes.jsonl --thread-count 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), cfg, v)
		},
	}
	f := cmd.Flags()
	f.String("config", "", "Writer YAML configuration file")
	f.String("driver", "", "Store driver (wire, memory, postgres, mysql)")
	f.String("host", "", "Store host")
	f.Int("port", 0, "Store port")
	f.String("user", "", "Login user")
	f.String("password", "", "Login password")
	f.String("database", "", "Backend database for SQL stores")
	f.String("db-path", "", "Database path of the target table")
	f.String("table", "", "Target table name (empty for an in-memory table)")
	f.String("partition-col", "", "Column routing rows to senders")
	f.Int("thread-count", 0, "Number of senders")
	f.Int("batch-size", 0, "Rows per bulk insert")
	f.Duration("throttle", 0, "Longest wait before sending a partial batch")
	f.StringSlice("compress", nil, "Compression method per column (none, lz4, delta)")
	f.String("input", "-", "Input file, - for stdin")
	f.String("unwritten", "unwritten.jsonl", "File receiving unsent rows on failure")
	f.String("metrics-addr", "", "Address of the Prometheus /metrics endpoint while loading")
	f.Bool("trace", false, "Export a span per bulk insert to stdout")
	return cmd
}

// loadConfig reads --config and overlays every flag or TABLEWRITER_*
// variable that was set.
func loadConfig(v *viper.Viper) (*config.WriterConfig, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.ReadFile(path); err != nil {
			return nil, err
		}
	}
	c := &cfg.Connection
	setString(v, "driver", &c.Driver)
	setString(v, "host", &c.Host)
	setString(v, "user", &c.User)
	setString(v, "password", &c.Password)
	setString(v, "database", &c.Database)
	if v.IsSet("port") {
		c.Port = v.GetInt("port")
	}
	setString(v, "db-path", &cfg.Table.DBPath)
	setString(v, "table", &cfg.Table.TableName)
	setString(v, "partition-col", &cfg.Table.PartitionCol)
	if v.IsSet("compress") {
		cfg.Table.CompressMethods = v.GetStringSlice("compress")
	}
	if v.IsSet("thread-count") {
		cfg.Performance.ThreadCount = v.GetInt("thread-count")
	}
	if v.IsSet("batch-size") {
		cfg.Performance.BatchSize = v.GetInt("batch-size")
	}
	if v.IsSet("throttle") {
		cfg.Performance.Throttle = v.GetDuration("throttle")
	}
	if v.IsSet("trace") {
		cfg.Observability.Tracing.Enabled = v.GetBool("trace")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func runLoad(ctx context.Context, cfg *config.WriterConfig, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, logger.TableKey, cfg.Table.DBPath+"/"+cfg.Table.TableName)
	log := logger.Component(logger.WithContext(ctx), "load")

	shutdownTracing, err := observability.InitTracing(cfg.Observability.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metricsSrv := startMetrics(v.GetString("metrics-addr"), log)
	defer stopMetrics(metricsSrv, log)

	in, closeIn, err := openInput(v.GetString("input"))
	if err != nil {
		return err
	}
	defer closeIn()

	opts, err := writer.FromConfig(cfg, logger.WithContext(ctx))
	if err != nil {
		return err
	}
	w, err := writer.New(ctx, opts)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, logger.WriterIDKey, w.ID())
	log = logger.Component(logger.WithContext(ctx), "load")

	start := time.Now()
	read, loadErr := feed(w, json.NewLineReader(in, maxLine))
	w.WaitForThreadCompletion()
	st := w.GetStatus()

	log.Info("load finished",
		zap.Int("rows_read", read),
		zap.Int64("rows_sent", st.SentRows),
		zap.Duration("duration", time.Since(start)))
	fmt.Fprint(os.Stderr, st.String())

	if st.HasError() {
		path := v.GetString("unwritten")
		n, err := writeUnwritten(path, w.GetUnwrittenData())
		if err != nil {
			log.Error("failed to save unwritten rows", zap.Error(err))
		} else {
			log.Warn("saved unwritten rows", zap.String("path", path), zap.Int("rows", n))
		}
		return fmt.Errorf("load failed: %s: %s", st.ErrorCode, st.ErrorMessage)
	}
	return loadErr
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is an operator flag
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// feed inserts every input row until the input ends or the writer refuses
// a row. It returns the number of rows read.
func feed(w *writer.Writer, lr *json.LineReader) (int, error) {
	names := w.Schema().Names()
	read := 0
	for {
		var line any
		err := lr.Next(&line)
		if err == io.EOF {
			return read, nil
		}
		if err != nil {
			return read, fmt.Errorf("line %d: %w", lr.Line(), err)
		}
		row, err := rowOf(line, names)
		if err != nil {
			return read, fmt.Errorf("line %d: %w", lr.Line(), err)
		}
		read++
		if err := w.Insert(row...); err != nil {
			return read, fmt.Errorf("line %d: %w", lr.Line(), err)
		}
	}
}

// rowOf orders a decoded line by column. Object keys missing from the line
// are NULL.
func rowOf(line any, names []string) (types.RawRow, error) {
	switch l := line.(type) {
	case []any:
		return l, nil
	case map[string]any:
		row := make(types.RawRow, len(names))
		for i, n := range names {
			row[i] = l[n]
		}
		return row, nil
	}
	return nil, fmt.Errorf("expected a JSON array or object, got %T", line)
}

func writeUnwritten(path string, rows []types.RawRow) (int, error) {
	f, err := os.Create(path) //nolint:gosec // G304: path is an operator flag
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var buf []byte
	for _, r := range rows {
		if buf, err = json.AppendMarshal(buf[:0], r); err != nil {
			return 0, err
		}
		buf = append(buf, '\n')
		if _, err := f.Write(buf); err != nil {
			return 0, err
		}
	}
	return len(rows), f.Sync()
}
