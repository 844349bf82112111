// Command glyphmesh-admin-token mints a short-lived admin bearer token for
// the admin-only endpoints (POST /knowledge/reset, POST /stream/broadcast).
// Operators run this out-of-band; glyphmeshd never issues tokens over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/glyphmesh/glyphmesh/config"
	"github.com/glyphmesh/glyphmesh/ingress"
)

func main() {
	configPath := flag.String("config", "./glyphmesh.toml", "Path to glyphmeshd configuration file")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.AdminTokenSecret == "" {
		fmt.Fprintln(os.Stderr, "AdminTokenSecret is empty in config; set it before minting tokens")
		os.Exit(1)
	}

	token, err := ingress.IssueAdminToken(cfg.AdminTokenSecret, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
