package main

import (
	"os"

	"github.com/hitoshi/authdemo/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
