package main

import (
	"log"

	"github.com/fleetwatch/monitor/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("monitor failed to start: %v", err)
	}
}
