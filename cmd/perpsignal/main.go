package main

import (
	"os"

	"github.com/spf13/cobra"

	applog "github.com/perpsignal/perpsignal/internal/log"
)

const (
	appName = "PerpSignal"
	version = "v1.0.0"
)

func main() {
	applog.Setup()

	rootCmd := &cobra.Command{
		Use:     "perpsignal",
		Short:   "Perp market microstructure aggregator and bias engine",
		Version: version,
		Long: appName + ` ingests perp and spot market microstructure from
seven venues (trades, liquidations, open interest, funding, depth) and
serves directional bias projections over HTTP.`,
	}

	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
