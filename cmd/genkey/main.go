package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

// Usage: genkey [live|test]
// Prints a new API key and the hash to append to API_KEY_HASHES.
func main() {
	env := domain.EnvLive
	if len(os.Args) > 1 && os.Args[1] == "test" {
		env = domain.EnvTest
	}

	key, hash, prefix, err := domain.GenerateAPIKey(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("KEY=%s\nHASH=%s\nPREFIX=%s\n", key, hash, prefix)
}
