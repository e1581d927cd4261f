package main

import (
	"log"

	"hotelbot/app"
	"hotelbot/core/cmd"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config/config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Build,
	})
	if err != nil {
		log.Fatalf("hotelbot: %v", err)
	}
}
