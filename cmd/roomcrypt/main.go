package main

import (
	"os"

	"github.com/joho/godotenv"

	"roomcrypt/cmd/roomcrypt/commands"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
