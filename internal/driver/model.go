package driver

import "time"

type Driver struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Row is one parsed roster line before identifiers are assigned.
type Row struct {
	Name        string `validate:"required"`
	PhoneNumber string `validate:"required"`
	Email       string `validate:"omitempty,email"`
}
