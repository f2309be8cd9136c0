// verify-db checks that the live database matches the schema the server
// expects and that the stored ledger figures are internally consistent.
// Exits non-zero on the first failed check.
//
// Usage: go run ./cmd/verify-db
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var requiredTables = []string{
	"users",
	"material_types",
	"rolls",
	"roll_usage_events",
	"receipt_sequences",
	"orders",
	"order_items",
	"partial_payments",
}

func main() {
	_ = godotenv.Load()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Fatal("[CONNECT] DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool := connectDB(ctx, url)
	defer pool.Close()

	checkTables(ctx, pool)
	checkRollBalances(ctx, pool)
	checkPaymentTotals(ctx, pool)
	checkReceiptUniqueness(ctx, pool)

	log.Println("[DONE] all checks passed")
}

func connectDB(ctx context.Context, url string) *pgxpool.Pool {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatalf("[CONNECT] failed to create pool: %v", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		log.Fatalf("[CONNECT] failed to ping database: %v", err)
	}
	log.Println("[CONNECT] success")
	return pool
}

func checkTables(ctx context.Context, pool *pgxpool.Pool) {
	for _, table := range requiredTables {
		var exists bool
		err := pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			log.Fatalf("[TABLES] failed to query %s: %v", table, err)
		}
		if !exists {
			log.Fatalf("[TABLES] missing table %s; run go run ./migrations", table)
		}
	}
	log.Printf("[TABLES] all %d present", len(requiredTables))
}

// checkRollBalances verifies used_length + available_length = total_length
// and that no roll has gone negative.
func checkRollBalances(ctx context.Context, pool *pgxpool.Pool) {
	var bad int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rolls
		WHERE available_length < 0
		   OR available_length > total_length
		   OR used_length <> total_length - available_length
	`).Scan(&bad)
	if err != nil {
		log.Fatalf("[ROLLS] failed to query: %v", err)
	}
	if bad > 0 {
		log.Fatalf("[ROLLS] %d rolls with inconsistent lengths", bad)
	}
	log.Println("[ROLLS] balances consistent")
}

// checkPaymentTotals verifies each order's amount_paid equals the sum of
// its recorded payments and never exceeds the order total.
func checkPaymentTotals(ctx context.Context, pool *pgxpool.Pool) {
	var bad int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT o.id
			FROM orders o
			LEFT JOIN partial_payments p ON p.order_id = o.id
			GROUP BY o.id, o.amount_paid, o.total
			HAVING o.amount_paid <> COALESCE(SUM(p.amount), 0)
			    OR o.amount_paid > o.total
		) broken
	`).Scan(&bad)
	if err != nil {
		log.Fatalf("[PAYMENTS] failed to query: %v", err)
	}
	if bad > 0 {
		log.Fatalf("[PAYMENTS] %d orders where amount_paid disagrees with payments", bad)
	}
	log.Println("[PAYMENTS] totals consistent")
}

func checkReceiptUniqueness(ctx context.Context, pool *pgxpool.Pool) {
	var dupes int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT receipt_number FROM orders GROUP BY receipt_number HAVING COUNT(*) > 1
		) d
	`).Scan(&dupes)
	if err != nil {
		log.Fatalf("[RECEIPTS] failed to query: %v", err)
	}
	if dupes > 0 {
		log.Fatalf("[RECEIPTS] %d duplicated receipt numbers", dupes)
	}
	log.Println("[RECEIPTS] numbers unique")
}
