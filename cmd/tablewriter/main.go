package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/tablewriter/pkg/logger"
	"github.com/ajitpratap0/tablewriter/pkg/store"

	// Register the store drivers
	_ "github.com/ajitpratap0/tablewriter/pkg/store/memory"
	_ "github.com/ajitpratap0/tablewriter/pkg/store/mysql"
	_ "github.com/ajitpratap0/tablewriter/pkg/store/postgres"
	_ "github.com/ajitpratap0/tablewriter/pkg/store/wire"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := newRootCmd().Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newViper reads TABLEWRITER_* environment variables; flag names map to
// them with dashes turned into underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TABLEWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command {
	var logLevel, logEncoding string
	root := &cobra.Command{
		Use:   "tablewriter",
		Short: "tablewriter - partition-aware multithreaded table writer",
		Long: `tablewriter bulk-loads rows into a partitioned table with one sender per
partition group, or serves an in-memory table store over the wire protocol.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: logLevel, Encoding: logEncoding})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logEncoding, "log-encoding", "console", "Log encoding (json, console)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tablewriter v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("Drivers: %s\n", strings.Join(store.Drivers(), ", "))
		},
	})
	root.AddCommand(newServeCmd(newViper()))
	root.AddCommand(newLoadCmd(newViper()))
	return root
}
