package main

import (
	"context"

	"github.com/Blackdeer1524/MiniDB/cmd/minidb/app"
)

func main() {
	app.MustExecute(context.Background())
}
