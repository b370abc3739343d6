package main

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/Adda-Baaj/newsroom-bridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(viper.New()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
