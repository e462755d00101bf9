// Package main is a diagnostic tool that checks the seat ledger in a live database.
// For every license it compares the stored available count with total minus the
// active loans. It exits non-zero when any license has drifted, so it can gate a
// deployment step or run from cron.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/seatdesk/seatdesk/internal/config"
	"github.com/seatdesk/seatdesk/internal/db"
)

const seatQuery = `
	SELECT l.id, l.name, l.total, l.available, COUNT(lo.id) AS active
	FROM licenses l
	LEFT JOIN loans lo ON lo.license_id = l.id AND lo.status = 'active'
	GROUP BY l.id, l.name, l.total, l.available
	ORDER BY l.name`

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 0)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	rows, err := database.Query(seatQuery)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	fmt.Println("=== LICENSES ===")
	var licenses, drifted int
	for rows.Next() {
		var id, name string
		var total, available, active int
		if err := rows.Scan(&id, &name, &total, &available, &active); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		licenses++

		mark := "ok"
		if available != total-active {
			mark = fmt.Sprintf("DRIFT (expected available=%d)", total-active)
			drifted++
		}
		fmt.Printf("%s  %-30s total=%d available=%d active=%d  %s\n", id, name, total, available, active, mark)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}

	fmt.Printf("\n%d licenses checked, %d drifted\n", licenses, drifted)
	if drifted > 0 {
		os.Exit(1)
	}
}
