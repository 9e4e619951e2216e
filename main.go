package main

import (
	"log"
	"os"

	"github.com/jghoshh/goalpal/backend"
	"github.com/jghoshh/goalpal/frontend"
)

// Runs the API server by default. "goalpal cli" starts the interactive client instead.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "cli" {
		frontend.RunFrontend()
		return
	}

	if err := backend.RunBackend(); err != nil {
		log.Fatal(err)
	}
}
