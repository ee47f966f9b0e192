// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "captp",
		Short:         "Capability transfer protocol peer",
		Long:          "captp serves a demo bootstrap object over TCP and calls methods on remote bootstrap objects, pipelining calls on unsettled results.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig(cfg, configFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "TOML config file (default ./captp.toml if present)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-file", "", "also write JSON logs to this file")
	_ = cfg.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = cfg.BindPFlag(keyLogFile, flags.Lookup("log-file"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(cfg),
		newCallCmd(cfg),
	)

	return rootCmd
}
