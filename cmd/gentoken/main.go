package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/config"
)

// gentoken prints a signed bearer token, typically the console's API_TOKEN.
func main() {
	email := flag.String("email", "console@rekko.io", "Actor recorded on created and updated configurations")
	role := flag.String("role", admin.RoleService, "Role: operator, viewer or service")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if !admin.IsValidRole(*role) {
		fmt.Fprintf(os.Stderr, "error: invalid role %q\n", *role)
		os.Exit(1)
	}

	cfg, err := config.LoadConsole()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	jwtService := admin.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, *ttl)
	token, err := jwtService.GenerateTokenWithTTL(uuid.New(), *email, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("TOKEN=%s\nROLE=%s\nEXPIRES=%s\n", token, *role, time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}
