package main

import (
	"context"
	"log"

	"locateflow/audit"
	"locateflow/compliance"
	"locateflow/config"
	"locateflow/db"
	"locateflow/member"
	"locateflow/ticket"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	calendar, err := cfg.Calendar()
	if err != nil {
		log.Fatalf("bootstrap holiday calendar: %v", err)
	}

	lifecycle := ticket.NewLifecycle(
		pool,
		ticket.NewRepository(pool),
		audit.NewLog(pool),
		compliance.NewClock(calendar),
	).WithDirectory(member.NewDirectory(pool))

	log.Printf("ticket lifecycle service ready: %+v", lifecycle != nil)
}
