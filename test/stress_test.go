package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"locateflow/audit"
	"locateflow/compliance"
	"locateflow/test/actors"
	"locateflow/test/chaos"
	"locateflow/test/infra"
	"locateflow/test/oracles"
	"locateflow/ticket"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", false, "randomly terminate database backends during the run")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestTicketLifecycleConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	year := time.Now().Year()
	lc := ticket.NewLifecycle(
		pool,
		ticket.NewRepository(pool),
		audit.NewLog(pool),
		compliance.NewClock(compliance.NewMapCalendar(nil, year, year+1, year+2)),
	)

	// one shared submitted ticket for the responders to fight over
	shared := mustSeedSubmitted(t, ctx, lc)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// known members racing duplicate and flip-flop submissions
	for i := 0; i < *flConcurrency; i++ {
		code := shared.codes[i%len(shared.codes)]
		g.Go(func() error { return actors.Responder(ctx2, lc, shared.ticketID, code, stop) })
	}
	// late registrants widening the expected set
	g.Go(func() error { return actors.UnknownResponder(ctx2, lc, shared.ticketID, stop) })
	// full-lifecycle walkers on their own tickets
	g.Go(func() error { return actors.Walker(ctx2, lc, "Travis", stop) })
	g.Go(func() error { return actors.Canceller(ctx2, lc, "Bexar", stop) })
	// expiry sweep
	g.Go(func() error { return actors.ExpirySweeper(ctx2, lc, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, "", stop)
	}

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type sharedTicket struct {
	ticketID string
	codes    []string
}

// mustSeedSubmitted creates a ticket with a fixed expected member set and
// walks it to submitted so responses start landing immediately.
func mustSeedSubmitted(t *testing.T, ctx context.Context, lc *ticket.Lifecycle) sharedTicket {
	t.Helper()
	actor := "seed"
	codes := []string{"ATT", "ONCOR", "ATMOS"}

	seeds := make([]ticket.MemberSeed, 0, len(codes))
	for _, code := range codes {
		seeds = append(seeds, ticket.MemberSeed{Code: code})
	}

	created, err := lc.Create(ctx, ticket.CreateParams{
		County:          "Harris",
		City:            "Houston",
		Address:         "1 Stress Way",
		ExpectedMembers: seeds,
	})
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	if _, err := lc.SubmitForValidation(ctx, created.ID, &actor); err != nil {
		t.Fatalf("seed submit for validation: %v", err)
	}
	if _, err := lc.ConfirmValidated(ctx, created.ID, &actor); err != nil {
		t.Fatalf("seed confirm validated: %v", err)
	}
	if _, err := lc.MarkSubmitted(ctx, created.ID, fmt.Sprintf("OCC-%d", rand.Int63()), &actor); err != nil {
		t.Fatalf("seed mark submitted: %v", err)
	}
	return sharedTicket{ticketID: created.ID, codes: codes}
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"tickets", `SELECT id, status, jsonb_array_length(expected_members) AS expected, legacy_response_status, expires_at FROM tickets ORDER BY updated_at DESC LIMIT 50`},
		{"responses", `SELECT ticket_id, member_code, status, created_at, updated_at FROM responses ORDER BY updated_at DESC LIMIT 50`},
		{"audit_entries", `SELECT ticket_id, seq, from_status, to_status, actor, created_at FROM audit_entries ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
