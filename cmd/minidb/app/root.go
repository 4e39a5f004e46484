package app

import (
	"context"

	"github.com/Blackdeer1524/MiniDB/src/cli"
)

var rootCmd = cli.Init("minidb")

func MustExecute(ctx context.Context) {
	initCommands()
	rootCmd.MustExecute(ctx)
}
