package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/solatis/metasync/cmd/metasync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
