package writer

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/config"
	"github.com/ajitpratap0/tablewriter/pkg/store"
)

// FromConfig builds Options from a validated file configuration.
func FromConfig(cfg *config.WriterConfig, l *zap.Logger) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	methods, err := cfg.Table.Methods()
	if err != nil {
		return Options{}, err
	}
	tlsCfg, err := cfg.Connection.TLSConfig()
	if err != nil {
		return Options{}, err
	}

	c := cfg.Connection
	return Options{
		Driver: c.Driver,
		Conn: store.ConnOptions{
			Host:             c.Host,
			Port:             c.Port,
			User:             c.User,
			Password:         c.Password,
			Database:         c.Database,
			UseSSL:           c.UseSSL,
			TLSConfig:        tlsCfg,
			HighAvailability: c.HighAvailability,
			Sites:            c.Sites,
			ConnectTimeout:   c.ConnectTimeout,
			Logger:           l,
		},
		DBPath:          cfg.Table.DBPath,
		TableName:       cfg.Table.TableName,
		BatchSize:       cfg.Performance.BatchSize,
		Throttle:        cfg.Performance.Throttle,
		ThreadCount:     cfg.Performance.ThreadCount,
		PartitionCol:    cfg.Table.PartitionCol,
		CompressMethods: methods,
		Logger:          l,
		DisableMetrics:  !cfg.Observability.EnableMetrics,
	}, nil
}
