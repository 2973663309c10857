package controllers

import (
	"strconv"
	"time"

	"studioapi/models"

	"github.com/golang-jwt/jwt/v5"
)

func GenerateUserToken(user models.UserAccount, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(user.ID), 10),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
