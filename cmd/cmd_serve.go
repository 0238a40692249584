package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/parley-ml/parley/engine/simengine"
	"github.com/parley-ml/parley/envconfig"
	"github.com/parley-ml/parley/executor"
	"github.com/parley-ml/parley/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the parley server",
		Args:    cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	eng, err := simengine.New(simengine.Config{
		ContextLength: int(envconfig.ContextLength()),
		VocabSize:     int(envconfig.VocabSize()),
	})
	if err != nil {
		return err
	}

	exec, err := executor.New(eng, executor.Config{
		BatchSize: int(envconfig.BatchSize()),
		LogitsF16: envconfig.LogitsF16(),
	})
	if err != nil {
		return err
	}
	defer exec.Close()

	ln, err := net.Listen("tcp", envconfig.Host())
	if err != nil {
		return err
	}
	defer ln.Close()

	return server.Serve(ln, exec, eng)
}
