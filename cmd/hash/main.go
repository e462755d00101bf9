// Package main prints the bcrypt hash of a password, using the same cost rules as the
// server. It is for seeding or resetting users directly in the database:
//
//	go run ./cmd/hash 'new-password'
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/seatdesk/seatdesk/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password> [cost]\n", os.Args[0])
		os.Exit(2)
	}

	cost := 0
	if len(os.Args) > 2 {
		c, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid cost %q\n", os.Args[2])
			os.Exit(2)
		}
		cost = c
	}

	hash, err := auth.HashPassword(os.Args[1], cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
