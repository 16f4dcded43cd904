package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fahdr/ecomm-sub005/internal/storage"
)

// gateway-keygen prints a new GATEWAY_ENCRYPTION_KEY, or with -encrypt seals
// a provider API key read from stdin using the configured key.
func main() {
	size := flag.Int("size", 32, "key size in bytes (16, 24 or 32)")
	encrypt := flag.Bool("encrypt", false, "encrypt the credential on stdin with GATEWAY_ENCRYPTION_KEY")
	flag.Parse()

	if !*encrypt {
		key, err := storage.GenerateKey(*size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	encryption, err := storage.NewEncryptionFromHex(os.Getenv("GATEWAY_ENCRYPTION_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid GATEWAY_ENCRYPTION_KEY: %v\n", err)
		os.Exit(1)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "ERROR: failed to read credential: %v\n", err)
		os.Exit(1)
	}

	sealed, err := encryption.EncryptCredential(strings.TrimSpace(line))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(sealed)
}
