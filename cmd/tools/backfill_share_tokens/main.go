// Backfills share tokens for jobs created before tokens were assigned at
// insert time. Jobs without a token have no public interview link; this tool
// mints one per job.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"hirevoice/internal/storage"
)

func main() {
	var dryRun bool
	var limit int
	flag.BoolVar(&dryRun, "dry-run", true, "If true, do not persist updates; just print changes")
	flag.IntVar(&limit, "limit", 200, "Max number of jobs to process in one run")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	log.Printf("Connecting to DB...")
	db, err := storage.NewDB(dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	q := `SELECT id, title FROM jobs WHERE share_token IS NULL OR share_token = '' LIMIT $1`
	rows, err := db.GetConnection().QueryContext(ctx, q, limit)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	type jobRow struct {
		id    string
		title string
	}

	var missing []jobRow
	for rows.Next() {
		var r jobRow
		if err := rows.Scan(&r.id, &r.title); err != nil {
			log.Printf("row scan error: %v", err)
			continue
		}
		missing = append(missing, r)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("row iteration failed: %v", err)
	}

	log.Printf("Found %d jobs without a share token (limit %d)", len(missing), limit)

	updated := 0
	for _, jr := range missing {
		token := uuid.NewString()
		if dryRun {
			log.Printf("[dry-run] would set share_token=%s for job %s (%s)", token, jr.id, jr.title)
			continue
		}

		res, err := db.GetConnection().ExecContext(ctx,
			`UPDATE jobs SET share_token = $1 WHERE id = $2 AND (share_token IS NULL OR share_token = '')`,
			token, jr.id)
		if err != nil {
			log.Printf("update failed for job %s: %v", jr.id, err)
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			log.Printf("job %s gained a token concurrently, skipping", jr.id)
			continue
		}
		updated++
		log.Printf("set share_token for job %s (%s)", jr.id, jr.title)
	}

	if dryRun {
		log.Printf("Dry run complete: %d jobs would be updated. Re-run with -dry-run=false to apply.", len(missing))
		return
	}
	log.Printf("Backfill complete: %d jobs updated", updated)
}
