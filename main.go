package main

import (
	"os"
	"package-registry/cmd"

	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("package-registry failed")
		os.Exit(1)
	}
}
