package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("🔌 Connecting to database...")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Printf("❌ Database connection failed: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Printf("❌ Database ping failed: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connection established")
	return db, nil
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Create users table (therapists, clients and admins)
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('therapist', 'client', 'admin')),
			phone_number TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create services catalog table
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL,
			duration_min INT NOT NULL,
			category TEXT NOT NULL CHECK(category IN ('Classic', 'Therapeutic', 'Premium', 'Add-on')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Create bookings table. The status column is the serialization point
		// for the claim race: every status change goes through a conditional
		// UPDATE that expects a specific current status.
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES users(id),
			service_type TEXT NOT NULL,
			service_duration_min INT NOT NULL DEFAULT 60,
			total_price DOUBLE PRECISION NOT NULL,
			address TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			payment_method TEXT NOT NULL DEFAULT 'cash',
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK(status IN ('pending', 'claimed', 'arrived', 'in_progress', 'completed', 'cancelled')),
			therapist_id TEXT REFERENCES users(id),
			therapist_latitude DOUBLE PRECISION,
			therapist_longitude DOUBLE PRECISION,
			therapist_location_updated_at BIGINT,
			started_at BIGINT,
			ended_at BIGINT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Pending feed is always read newest-first
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_created
			ON bookings(status, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_therapist
			ON bookings(therapist_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("✅ Database migrations completed")
	return nil
}
