// Command keygen generates an admin API key and its bcrypt hash. The hash
// goes into DOKUSHO_AUTH_ADMIN_KEY_HASH; the plaintext key goes to whoever
// operates the admin API.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	"github.com/dokusho-app/dokusho-api/internal/service/auth"
)

func main() {
	key := flag.String("key", "", "hash this key instead of generating a new one")
	flag.Parse()

	adminKey := *key
	if adminKey == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			log.Fatalf("failed to generate key: %v", err)
		}
		adminKey = base64.RawURLEncoding.EncodeToString(raw)
	}

	hash, err := auth.HashKey(adminKey)
	if err != nil {
		log.Fatalf("failed to hash key: %v", err)
	}

	fmt.Printf("Admin key: %s\n", adminKey)
	fmt.Printf("Hash:      %s\n", hash)
}
