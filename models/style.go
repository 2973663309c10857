package models

import (
	"unicode"

	"github.com/go-playground/validator"
)

type Style string

const (
	StyleRealistic  Style = "realistic"
	StyleArtistic   Style = "artistic"
	StyleMinimalist Style = "minimalist"
	StyleVintage    Style = "vintage"
)

var Styles = []Style{StyleRealistic, StyleArtistic, StyleMinimalist, StyleVintage}

func (s Style) Valid() bool {
	switch s {
	case StyleRealistic, StyleArtistic, StyleMinimalist, StyleVintage:
		return true
	}
	return false
}

func ValidateStyle(fl validator.FieldLevel) bool {
	return Style(fl.Field().String()).Valid()
}

func ValidateHasUpper(fl validator.FieldLevel) bool {
	return containsRune(fl.Field().String(), unicode.IsUpper)
}

func ValidateHasLower(fl validator.FieldLevel) bool {
	return containsRune(fl.Field().String(), unicode.IsLower)
}

func ValidateHasDigit(fl validator.FieldLevel) bool {
	return containsRune(fl.Field().String(), unicode.IsDigit)
}

func containsRune(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if pred(r) {
			return true
		}
	}
	return false
}
