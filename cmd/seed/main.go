// seed is a one-shot tool that loads the baseline shop data: the admin
// user, the material type catalogue and a starting roll per material.
// Safe to re-run; existing rows are updated in place.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"printshop-backend/internal/core"
	"printshop-backend/internal/db"

	"github.com/joho/godotenv"
)

type materialSeed struct {
	code string
	name string
}

var materials = []materialSeed{
	{"banner", "Banner"},
	{"sticker", "Sticker"},
	{"pvc", "PVC Board"},
	{"canvas", "Canvas"},
}

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Restoring admin user...")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "changeme"
		log.Println("ADMIN_PASSWORD not set, using default; change it after first login")
	}
	hash, err := core.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (username, password_hash, full_name, role)
		VALUES ('admin', $1, 'Administrator', 'admin')
		ON CONFLICT (username) DO UPDATE
		  SET password_hash = EXCLUDED.password_hash,
		      full_name = EXCLUDED.full_name,
		      role = EXCLUDED.role;
	`, hash)
	if err != nil {
		log.Fatalf("Failed to restore admin user: %v", err)
	}

	manual := manualMaterials()

	log.Println("Restoring material types...")
	for _, m := range materials {
		_, err = tx.Exec(ctx, `
			INSERT INTO material_types (code, name, manual_roll_selection)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE
			  SET name = EXCLUDED.name,
			      manual_roll_selection = EXCLUDED.manual_roll_selection;
		`, m.code, m.name, manual[m.code])
		if err != nil {
			log.Fatalf("Failed to restore material type %s: %v", m.code, err)
		}
	}

	log.Println("Installing starter rolls...")
	for _, m := range materials {
		_, err = tx.Exec(ctx, `
			INSERT INTO rolls (roll_number, material_type, total_length, available_length, used_length, is_active)
			VALUES (1, $1, 50, 50, 0, true)
			ON CONFLICT (roll_number, material_type) DO NOTHING;
		`, m.code)
		if err != nil {
			log.Fatalf("Failed to install starter roll for %s: %v", m.code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}
	log.Println("Seed complete.")
}

// manualMaterials reads MANUAL_ROLL_MATERIALS, a comma-separated list of
// material codes whose rolls must be chosen by hand on every order.
func manualMaterials() map[string]bool {
	manual := make(map[string]bool)
	for _, code := range strings.Split(os.Getenv("MANUAL_ROLL_MATERIALS"), ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			manual[code] = true
		}
	}
	return manual
}
