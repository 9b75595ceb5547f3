package main

import (
	"os"

	"github.com/JonMunkholm/HRMetricsQA/internal/cli"
)

func main() {
	os.Exit(int(cli.Run(os.Args[1:])))
}
