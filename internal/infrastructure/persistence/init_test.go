package persistence_test

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func init() {
	// Integration tests read RECRUITFLOW_TEST_DATABASE_* from the repo-root .env when present.
	paths := []string{
		"../../../.env",
		"../../.env",
		".env",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				log.Printf("loaded .env from %s for tests", p)
				return
			}
		}
	}
}
