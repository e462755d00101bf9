// Package main is a post-deployment smoke test. It calls the unauthenticated system
// endpoints of a running server and prints each status and body. The base URL
// defaults to http://localhost:8080 and can be passed as the first argument.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func main() {
	baseURL := "http://localhost:8080"
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)

	failed := false
	for _, path := range []string{"/health", "/ready", "/version", "/organizations"} {
		resp, err := client.R().Get(path)
		if err != nil {
			fmt.Printf("GET %s: error: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("GET %s: %d\n%s\n\n", path, resp.StatusCode(), resp.String())
		if resp.IsError() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
