package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"studioapi/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
}

// uploadFormOverhead covers the prompt, style and multipart framing around
// the image part.
const uploadFormOverhead int64 = 64 << 10

func fileTooLarge(c echo.Context) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"message": "File too large"})
}

// UploadLimit rejects bodies over maxFileSize plus form overhead. A declared
// Content-Length over the limit is refused before reading, and a streamed
// body stops being read once it passes the limit.
func UploadLimit(maxFileSize int64) echo.MiddlewareFunc {
	bodyLimit := middleware.BodyLimit(strconv.FormatInt(maxFileSize+uploadFormOverhead, 10) + "B")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) && !c.Response().Committed {
				return fileTooLarge(c)
			}
			return err
		}
	}
}

// UserMiddleware loads the account named by the token subject into
// "currentUser". Tokens for deleted accounts are rejected.
func UserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		logger := c.Get("__logger").(*zap.Logger)

		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return unauthorized(c)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c)
		}
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			logger.Warn("token without subject")
			return unauthorized(c)
		}
		userId, err := strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return unauthorized(c)
		}

		var currentUser models.UserAccount
		result := db.WithContext(c.Request().Context()).Where("id = ?", userId).Take(&currentUser)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return unauthorized(c)
		}
		if result.Error != nil {
			return result.Error
		}
		c.Set("currentUser", currentUser)
		return next(c)
	}
}
