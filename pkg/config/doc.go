// Package config provides the YAML configuration of a table writer.
//
// The configuration is organized into logical sections:
//   - Connection: store driver, address, credentials, TLS and failover
//   - Table: target table, partitioning column and column compression
//   - Performance: batch size, throttle and sender count
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Table.DBPath = "dfs://quotes"
//	cfg.Table.TableName = "q"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # File format
//
//	name: quotes-loader
//	connection:
//	  driver: wire
//	  host: db1.internal
//	  port: 8848
//	  user: admin
//	  password: ${TABLEWRITER_PASSWORD}
//	  high_availability: true
//	  sites: ["db2.internal:8848"]
//	  connect_timeout: 5s
//	table:
//	  db_path: dfs://quotes
//	  table_name: q
//	  partition_col: sym
//	  compress_methods: [lz4, lz4, delta]
//	performance:
//	  batch_size: 10000
//	  throttle: 100ms
//	  thread_count: 4
//	observability:
//	  logging:
//	    level: info
//	  enable_metrics: true
//	  metrics_addr: ":9090"
//
// Missing keys keep the values of Default. Durations use Go syntax
// ("250ms", "5s"). ${VAR_NAME} references are replaced by the environment
// variable's value, or the empty string when unset, before parsing.
package config
