// Command admintoken prints a bearer token for the admin API, signed with
// ADMIN_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	subject := pflag.String("sub", "operator", "token subject")
	ttl := pflag.Duration("ttl", 24*time.Hour, "token lifetime")
	pflag.Parse()

	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_SECRET is not set")
		os.Exit(2)
	}

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  *subject,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(*ttl).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
