package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	GrpcAddr       string `envconfig:"GRPC_ADDR" default:"localhost:3002"`
	// COLOURS disables the colored headers when piping the output
	Colours bool `envconfig:"COLOURS" default:"true"`
}

func loadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "inspect",
		Short:         "Inspect the code-lab workspace store and execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", cfg.BadgerFilepath, "path to the badger directory (the server must be stopped)")
	root.PersistentFlags().Bool("colours", cfg.Colours, "colored headers")

	root.AddCommand(newSessionsCmd())
	root.AddCommand(newFilesCmd())
	root.AddCommand(newRunCmd(cfg.GrpcAddr))
	return root
}
