package frontend

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/jghoshh/goalpal/frontend/client"
	"github.com/jghoshh/goalpal/frontend/cmd"
)

// RunFrontend starts the interactive CLI against the server at SERVER_URL.
func RunFrontend() {
	// Load the .env file
	if err := godotenv.Load("frontend/.env"); err != nil {
		log.Println("no frontend/.env file, using the environment")
	}

	client.InitClient(os.Getenv("SERVER_URL"), os.Getenv("AUTH_TOKEN_KEY"))
	cmd.InitAuthCmd()
	cmd.Execute()
}
