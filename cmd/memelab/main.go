package main

import (
	"context"

	"github.com/shouni/meme-genius-lab/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(cli.NewCLI().ExecuteContext(context.Background()))
}
