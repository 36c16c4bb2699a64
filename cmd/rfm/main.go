package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"rfm-dashboard/internal/cli"
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
