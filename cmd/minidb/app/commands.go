package app

import (
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/MiniDB/src/app"
	"github.com/Blackdeer1524/MiniDB/src/cli"
)

func initCommands() {
	fs := afero.NewOsFs()

	rootCmd.AddEntrypoint(
		"create",
		"Creates an empty database",
		func(opts cli.Options) app.Entrypoint {
			return app.NewCreateEntrypoint(opts.ConfigPath, fs)
		},
	)
	rootCmd.AddEntrypoint(
		"check",
		"Opens the database, recovering it after a crash, and prints its statistics",
		func(opts cli.Options) app.Entrypoint {
			return app.NewCheckEntrypoint(opts.ConfigPath, fs)
		},
	)
	rootCmd.AddEntrypoint(
		"bench",
		"Runs a concurrent transactional workload against the database",
		func(opts cli.Options) app.Entrypoint {
			return app.NewBenchEntrypoint(opts.ConfigPath, fs)
		},
	)
}
