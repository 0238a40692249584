// Package cmd wires up the parley command line interface.
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/parley-ml/parley/envconfig"
	"github.com/parley-ml/parley/version"
)

// appendEnvDocs adds environment variable documentation to a command's
// usage output.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "parley version %s\n", version.Version)
}

// NewCLI creates the root command with all subcommands.
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "parley",
		Short:         "Multi-conversation batching scheduler for token inference",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	benchCmd := newBenchCmd()

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{
		envVars["PARLEY_HOST"],
		envVars["PARLEY_DEBUG"],
		envVars["PARLEY_BATCH"],
		envVars["PARLEY_CONTEXT"],
		envVars["PARLEY_VOCAB"],
		envVars["PARLEY_LOGITS_F16"],
	}
	appendEnvDocs(serveCmd, envs)

	rootCmd.AddCommand(
		serveCmd,
		benchCmd,
	)

	return rootCmd
}
