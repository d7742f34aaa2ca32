package database

import (
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

func SeedUsers(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	therapistPassword, err := bcrypt.GenerateFromPassword([]byte("therapist123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	clientPassword, err := bcrypt.GenerateFromPassword([]byte("client123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []map[string]interface{}{
		{
			"id":       uuid.New().String(),
			"email":    "therapist@hilom.ph",
			"password": string(therapistPassword),
			"name":     "Maria Santos",
			"role":     "therapist",
		},
		{
			"id":       uuid.New().String(),
			"email":    "therapist2@hilom.ph",
			"password": string(therapistPassword),
			"name":     "Jose Ramirez",
			"role":     "therapist",
		},
		{
			"id":       uuid.New().String(),
			"email":    "client@hilom.ph",
			"password": string(clientPassword),
			"name":     "Ana Dela Cruz",
			"role":     "client",
		},
		{
			"id":       uuid.New().String(),
			"email":    "admin@hilom.ph",
			"password": string(adminPassword),
			"name":     "Admin User",
			"role":     "admin",
		},
	}

	for _, user := range users {
		query := `
			INSERT INTO users (id, email, password, name, role)
			VALUES (:id, :email, :password, :name, :role)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", user["email"], user["role"])
	}

	log.Println("✓ Successfully seeded test users")
	log.Println("  📧 Therapist: therapist@hilom.ph / therapist123")
	log.Println("  📧 Client:    client@hilom.ph / client123")
	log.Println("  📧 Admin:     admin@hilom.ph / admin123")
	return nil
}

func SeedServices(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM services"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Services already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding service catalog...")

	services := []map[string]interface{}{
		{"name": "Swedish Massage", "description": "Full-body relaxation massage with long gliding strokes", "price": 499.0, "duration_min": 60, "category": "Classic"},
		{"name": "Shiatsu", "description": "Japanese pressure-point massage", "price": 549.0, "duration_min": 60, "category": "Classic"},
		{"name": "Deep Tissue Massage", "description": "Targets chronic muscle tension in the deeper layers", "price": 699.0, "duration_min": 90, "category": "Therapeutic"},
		{"name": "Sports Massage", "description": "Pre- and post-activity recovery work", "price": 749.0, "duration_min": 90, "category": "Therapeutic"},
		{"name": "Hot Stone Massage", "description": "Heated basalt stones with full-body massage", "price": 999.0, "duration_min": 90, "category": "Premium"},
		{"name": "Ventosa Cupping", "description": "Traditional cupping add-on", "price": 250.0, "duration_min": 30, "category": "Add-on"},
		{"name": "Foot Reflexology", "description": "Pressure-point foot massage add-on", "price": 300.0, "duration_min": 30, "category": "Add-on"},
	}

	for _, service := range services {
		service["id"] = uuid.New().String()
		query := `
			INSERT INTO services (id, name, description, price, duration_min, category)
			VALUES (:id, :name, :description, :price, :duration_min, :category)
		`
		if _, err := db.NamedExec(query, service); err != nil {
			return err
		}
		log.Printf("  ✓ Created service: %s (₱%.0f)", service["name"], service["price"])
	}

	log.Println("✓ Successfully seeded service catalog")
	return nil
}
