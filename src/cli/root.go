package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/MiniDB/src/app"
	"github.com/Blackdeer1524/MiniDB/src/cfg"
)

type Options struct {
	ConfigPath string
	DataPath   string
}

type RootCommand struct {
	*cobra.Command
	Options Options
}

func Init(name string) *RootCommand {
	cmd := &RootCommand{
		Command: &cobra.Command{
			Use:           name,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
	}
	cmd.PersistentPreRunE = cmd.applyOptions
	cmd.initFlags()

	return cmd
}

// applyOptions exports flag overrides to the environment. godotenv never
// overrides variables that are already set, so flags win over .env files.
func (c *RootCommand) applyOptions(*cobra.Command, []string) error {
	if c.Options.DataPath == "" {
		return nil
	}

	return os.Setenv(cfg.EnvPrefix+"_DATA_PATH", c.Options.DataPath)
}

// AddEntrypoint registers a subcommand running the entrypoint built by
// newEntrypoint through app.Run.
func (c *RootCommand) AddEntrypoint(
	use, short string,
	newEntrypoint func(opts Options) app.Entrypoint,
) {
	c.AddCommand(&cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), newEntrypoint(c.Options))
		},
	})
}

func (c *RootCommand) Execute(ctx context.Context) error {
	return c.ExecuteContext(ctx)
}

func (c *RootCommand) MustExecute(ctx context.Context) {
	if err := c.Execute(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "app failed: %v\n", err)
		os.Exit(1)
	}
}
