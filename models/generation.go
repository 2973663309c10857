package models

import "time"

type GenerationStatus string

// Only successful runs are stored, so every record is completed.
const GenerationCompleted GenerationStatus = "completed"

type Generation struct {
	JsonModel
	UserAccountID    uint             `gorm:"index;not null" json:"-"`
	UserAccount      UserAccount      `json:"-"`
	Prompt           string           `gorm:"size:500;not null" json:"prompt"`
	Style            Style            `gorm:"size:32;not null" json:"style"`
	ImageKey         string           `gorm:"not null" json:"-"`
	OriginalImageKey string           `gorm:"not null" json:"-"`
	Status           GenerationStatus `gorm:"size:32;not null" json:"status"`
}

// GenerationIn carries the text fields of the multipart generation form.
// The image part is read separately.
type GenerationIn struct {
	Prompt string `form:"prompt" json:"prompt" validate:"required,max=500"`
	Style  string `form:"style" json:"style" validate:"required,style"`
}

type GenerationOut struct {
	ID               uint             `json:"id"`
	Prompt           string           `json:"prompt"`
	Style            Style            `json:"style"`
	ImageURL         string           `json:"imageUrl"`
	OriginalImageURL string           `json:"originalImageUrl"`
	Status           GenerationStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
}

func (g Generation) Out(imageURL string, originalImageURL string) GenerationOut {
	return GenerationOut{
		ID:               g.ID,
		Prompt:           g.Prompt,
		Style:            g.Style,
		ImageURL:         imageURL,
		OriginalImageURL: originalImageURL,
		Status:           g.Status,
		CreatedAt:        g.CreatedAt,
	}
}
