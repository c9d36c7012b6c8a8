// Command reviewlens-dashboard is the desktop review UI for the reviewlens API.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"yashubustudio/reviewlens/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to reviewlens-dashboard.json")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: loading .env: %v", err)
	}
	if err := app.Run(*configPath); err != nil {
		log.Fatalf("reviewlens-dashboard: %v", err)
	}
}
