package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const SecretKeyBytesLen = 32

// Prints a fresh pair of signing keys ready to paste into .env.
// Access and refresh tokens must be signed with different keys.
func main() {
	for _, name := range []string{"SECRET_KEY", "REFRESH_SECRET_KEY"} {
		b := make([]byte, SecretKeyBytesLen)

		_, err := rand.Read(b)
		if err != nil {
			fmt.Printf("error while generating secret key: %v", err)
			os.Exit(1)
		}

		fmt.Printf("%s=%s\n", name, hex.EncodeToString(b))
	}
}
