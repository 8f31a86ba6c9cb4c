// Command adminhash prints an argon2id hash for ADMIN_PASSWORD_HASH.
//
// The password is read from ADMIN_PASSWORD, or from the first line of stdin
// when that is unset.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	httpserver "github.com/fairyhunter13/recipe-extractor/internal/adapter/httpserver"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	password := cfg.AdminPassword
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("no password: set ADMIN_PASSWORD or pipe it on stdin")
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatal("empty password")
	}

	hash, err := httpserver.HashPassword(password, httpserver.DefaultArgon2Params)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
