package main

import (
	"os"

	"github.com/rahul/mia/internal/observability"
	"github.com/rahul/mia/pkg/config"
	"github.com/spf13/cobra"
)

const defaultConfig = "config.json"

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:          "mia",
		Short:        "Market intelligence missions: plan, gather, synthesize, disseminate",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				if _, err := os.Stat(defaultConfig); err == nil {
					cfgPath = defaultConfig
				}
			}
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			observability.Setup(observability.LogConfig{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file, JSON or YAML (default ./config.json when present)")

	load := func() *config.Config { return cfg }
	root.AddCommand(runCMD(load), analyzeCMD(load), serveCMD(load), historyCMD(load), recallCMD(load))
	return root
}
