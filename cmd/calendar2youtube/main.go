package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noah-isme/calendar2youtube/internal/cli"
)

// @title calendar2youtube API
// @version 1.0.0
// @description Trigger and inspect classroom calendar to YouTube synchronization runs.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
