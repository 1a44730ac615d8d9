package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	root := Root()
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Send()
		os.Exit(1)
	}
}
