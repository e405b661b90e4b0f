// Package tablewriter is a multi-threaded, partition-aware table writer.
//
// A writer accepts rows one at a time from any number of goroutines,
// converts each value to the target column type, routes the row to a worker
// chosen by its partition key, and lets every worker batch and send its rows
// over a dedicated store connection. Rows with the same partition key always
// go to the same worker, so their relative order is kept.
//
// # Architecture
//
//	Insert -> Converter -> Router -> Sender[0..n-1] -> store
//
// Each stage runs in one goroutine and is fed by a mutex-protected FIFO
// (internal/queue). The first error anywhere in the pipeline is sticky: the
// writer stops accepting rows, every stage stops, and the rows that were not
// written can be read back with GetUnwrittenData and reinserted into a new
// writer with InsertUnwrittenData.
//
// Store backends register themselves by name (pkg/store):
//
//   - memory: an in-process catalog, used by tests and the serve command
//   - wire: a length-prefixed binary protocol carrying compressed column blocks
//   - postgres: COPY FROM through pgx
//   - mysql: multi-row INSERT through go-sql-driver/mysql
//
// # Quick Start
//
//	import (
//	    "context"
//	    "time"
//
//	    "github.com/ajitpratap0/tablewriter/pkg/writer"
//	    _ "github.com/ajitpratap0/tablewriter/pkg/store/wire"
//	)
//
//	opts := writer.DefaultOptions()
//	opts.DBPath, opts.TableName = "dfs://quotes", "q"
//	opts.ThreadCount, opts.PartitionCol = 4, "sym"
//	opts.BatchSize, opts.Throttle = 1000, 10*time.Millisecond
//
//	w, err := writer.New(context.Background(), opts)
//	if err != nil {
//	    return err
//	}
//	for _, q := range quotes {
//	    if err := w.Insert(q.ID, q.Sym, q.Price, q.TS); err != nil {
//	        break
//	    }
//	}
//	w.WaitForThreadCompletion()
//
//	if st := w.GetStatus(); st.HasError() {
//	    retry := w.GetUnwrittenData()
//	    // reinsert retry into a new writer
//	}
//
// # Command Line
//
//	tablewriter serve --addr :8848 --catalog tables.yaml
//	tablewriter load --config writer.yaml --input rows.jsonl
//
// # Configuration
//
// Writers can be described in YAML (pkg/config). Values of the form ${VAR}
// are replaced from the environment, and the CLI overlays flags and
// TABLEWRITER_* environment variables on top of the file.
package tablewriter
