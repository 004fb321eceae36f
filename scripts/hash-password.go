package main

import (
	"fmt"
	"os"

	"github.com/openclaw/credit-ledger-go/internal/util"
)

// Prints a bcrypt hash for ADMIN_TOKEN_HASH. Without an argument a fresh
// token is generated and printed alongside its hash.
func main() {
	token := ""
	if len(os.Args) >= 2 {
		token = os.Args[1]
	} else {
		generated, err := util.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		token = generated
		fmt.Fprintf(os.Stderr, "Generated admin token: %s\n", token)
	}

	hash, err := util.HashPassword(token, util.AdminTokenCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
