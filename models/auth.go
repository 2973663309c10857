package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SignUpIn struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8,hasupper,haslower,hasdigit"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginIn struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserOut struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type AuthOut struct {
	Token string  `json:"token"`
	User  UserOut `json:"user"`
}

var emailCaser = cases.Lower(language.Und)

// NormalizeEmail trims and lower-cases an address before lookup or storage.
func NormalizeEmail(email string) string {
	return emailCaser.String(strings.TrimSpace(email))
}
