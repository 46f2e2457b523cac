// Command hash-generator prints the values stockroom's auth configuration
// expects: bcrypt hashes for auth.users[].password_hash and SHA-256 digests
// for auth.api_key_digests.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/stockroom/internal/auth"
)

func main() {
	password := flag.String("password", "", "operator password to hash with bcrypt")
	apiKey := flag.String("api-key", "", "API key to digest")
	newKey := flag.Bool("new-api-key", false, "generate a random API key and print it with its digest")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	if err := run(os.Stdout, *password, *apiKey, *newKey, *cost); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, password, apiKey string, newKey bool, cost int) error {
	if password == "" && apiKey == "" && !newKey {
		return fmt.Errorf("one of -password, -api-key or -new-api-key is required")
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return fmt.Errorf("error generating hash: %w", err)
		}
		fmt.Fprintf(w, "password_hash: %s\n", hash)
	}

	if newKey {
		key, err := generateAPIKey()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "api_key: %s\n", key)
		apiKey = key
	}
	if apiKey != "" {
		fmt.Fprintf(w, "api_key_digest: %s\n", auth.DigestAPIKey(apiKey))
	}
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating api key: %w", err)
	}
	return "sk_" + hex.EncodeToString(b), nil
}
