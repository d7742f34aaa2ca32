package models

// Service is one entry in the bookable service catalog
type Service struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	Price       float64 `json:"price" db:"price"`
	DurationMin int     `json:"duration_min" db:"duration_min"`
	Category    string  `json:"category" db:"category"` // "Classic", "Therapeutic", "Premium" or "Add-on"
	CreatedAt   int64   `json:"created_at" db:"created_at"`
}
