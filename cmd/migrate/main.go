package main

import (
	"fmt"
	"log"
	"os"

	"hilom-backend/internal/database"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if err := database.SeedUsers(db); err != nil {
		log.Fatalf("User seeding failed: %v", err)
	}
	if err := database.SeedServices(db); err != nil {
		log.Fatalf("Service seeding failed: %v", err)
	}

	// Query and display summary
	var result struct {
		Users    int `db:"users"`
		Services int `db:"services"`
		Bookings int `db:"bookings"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM services) AS services,
			(SELECT COUNT(*) FROM bookings) AS bookings
	`
	if err := db.Get(&result, query); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Users:    %d\n", result.Users)
	fmt.Printf("Services: %d\n", result.Services)
	fmt.Printf("Bookings: %d\n", result.Bookings)
	fmt.Println("============================================================")
}
