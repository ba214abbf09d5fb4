// Command gen-token mints HS256 bearer tokens accepted by the API when it
// runs with AUTH_TEST_MODE=1. The signing secret comes from TEST_JWT_SECRET,
// the same variable the server reads.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func main() {
	var (
		user = flag.String("user", "local-dev", "subject claim for the token")
		ttl  = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	if *ttl <= 0 {
		log.Fatal("ttl must be positive")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": *user,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(signed)
}
