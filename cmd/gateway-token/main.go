package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/auth"
	"github.com/fahdr/ecomm-sub005/internal/config"
)

// gateway-token mints an admin API token signed with JWT_SECRET.
//
//	gateway-token -subject ops@example.com -roles admin -ttl 24h
func main() {
	subject := flag.String("subject", "", "token subject, usually the operator's email")
	roles := flag.String("roles", string(auth.RoleViewer), "comma-separated roles (admin, viewer)")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if strings.TrimSpace(*subject) == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -subject is required")
		os.Exit(2)
	}

	var parsed []auth.Role
	for _, r := range strings.Split(*roles, ",") {
		role := auth.Role(strings.TrimSpace(r))
		if role == "" {
			continue
		}
		if !role.IsValid() {
			fmt.Fprintf(os.Stderr, "ERROR: unknown role %q\n", role)
			os.Exit(2)
		}
		parsed = append(parsed, role)
	}
	if len(parsed) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: at least one role is required")
		os.Exit(2)
	}

	secret, err := config.LoadJWTSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := auth.IssueAdminToken(secret, *subject, parsed, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Token for %s expires at %s\n", *subject, expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
