package models

import "time"

type MessageOut struct {
	Message string `json:"message"`
}

type ValidationErrorOut struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type HealthOut struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
