package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hilom-backend/internal/models"
	"hilom-backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

type CreateUserRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Name        string  `json:"name"`
	Role        string  `json:"role"` // "therapist", "client" or "admin"
	PhoneNumber *string `json:"phone_number"`
}

type CreateUserResponse struct {
	Success bool                 `json:"success"`
	User    *models.UserResponse `json:"user,omitempty"`
	Message string               `json:"message,omitempty"`
}

// CreateUser creates a new user (therapist/client/admin)
// Requires admin authentication
func CreateUser(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("❌ Invalid request body: %v", err)
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.Email == "" || req.Password == "" || req.Name == "" || req.Role == "" {
			utils.RespondError(w, http.StatusBadRequest, "Email, password, name, and role are required")
			return
		}

		validRoles := map[string]bool{"therapist": true, "client": true, "admin": true}
		if !validRoles[req.Role] {
			utils.RespondError(w, http.StatusBadRequest, "Role must be 'therapist', 'client' or 'admin'")
			return
		}

		// Check if user already exists
		var existingUser models.User
		checkQuery := "SELECT id FROM users WHERE email = $1"
		err := db.Get(&existingUser, checkQuery, req.Email)
		if err == nil {
			utils.RespondError(w, http.StatusConflict, "User with this email already exists")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("❌ Failed to hash password: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		now := time.Now().Unix()
		user := models.User{
			ID:          uuid.New().String(),
			Email:       req.Email,
			Password:    string(hashedPassword),
			Name:        req.Name,
			Role:        req.Role,
			PhoneNumber: req.PhoneNumber,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		insertQuery := `
			INSERT INTO users (id, email, password, name, role, phone_number, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err = db.Exec(
			insertQuery,
			user.ID,
			user.Email,
			user.Password,
			user.Name,
			user.Role,
			models.ToNullString(user.PhoneNumber),
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			log.Printf("❌ Database error: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create user")
			return
		}

		log.Printf("✅ User created: %s (%s)", user.Email, user.Role)

		userResponse := user.ToUserResponse()
		utils.JSON(w, http.StatusCreated, CreateUserResponse{
			Success: true,
			User:    &userResponse,
			Message: "User created successfully",
		})
	}
}
