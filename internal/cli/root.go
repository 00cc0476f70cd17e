// Package cli implements the syncplay command tree.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-sync/internal/config"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
)

var version = "dev"

type Dependencies struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Config is loaded before any subcommand runs.
	Config *config.ClientConfig
}

// NewDependencies wires the process's standard streams.
func NewDependencies() *Dependencies {
	return &Dependencies{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "syncplay",
		Short:         "Watch media together in sync",
		Long:          "Host or join a room whose participants play the same media in lockstep.\nMissing files are transferred from the host before playback starts.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			deps.Config = cfg

			pkglog.Init(pkglog.Config{
				Level:       cfg.Log.Level,
				Pretty:      cfg.Log.Pretty,
				ServiceName: "syncplay",
				Output:      deps.Err,
			})
			return nil
		},
	}

	rootCmd.SetIn(deps.In)
	rootCmd.SetOut(deps.Out)
	rootCmd.SetErr(deps.Err)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./config/client.yaml)")

	rootCmd.AddCommand(NewHostCmd(deps))
	rootCmd.AddCommand(NewJoinCmd(deps))
	rootCmd.AddCommand(NewTokenCmd(deps))
	rootCmd.AddCommand(NewEventsCmd(deps))

	return rootCmd
}
