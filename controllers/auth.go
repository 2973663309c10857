package controllers

import (
	"errors"
	"net/http"

	"studioapi/config"
	"studioapi/models"
	"studioapi/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuthController struct {
	Config *config.Config
}

func (m *AuthController) issue(c echo.Context, status int, user models.UserAccount) error {
	token, err := GenerateUserToken(user, m.Config.JWTSecret, m.Config.TokenTTL)
	if err != nil {
		return err
	}
	return c.JSON(status, models.AuthOut{Token: token, User: user.Out()})
}

func (m *AuthController) AuthRoutes(g *echo.Group, jwtMiddleware echo.MiddlewareFunc) {
	g.POST("/signup", func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		logger := c.Get("__logger").(*zap.Logger)

		in := new(models.SignUpIn)
		if err := c.Bind(in); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		}
		in.Email = models.NormalizeEmail(in.Email)
		if err := c.Validate(in); err != nil {
			return err
		}

		var existing models.UserAccount
		r := db.Where("email = ?", in.Email).Limit(1).Find(&existing)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected > 0 {
			services.RecordAuthEvent("signup", "conflict")
			return c.JSON(http.StatusConflict, map[string]string{"message": "User already exists"})
		}

		hash, err := services.HashPassword(in.Password, m.Config.BcryptCost)
		if err != nil {
			return err
		}
		user := models.UserAccount{
			Email:    in.Email,
			Name:     in.Name,
			Password: hash,
			LastIp:   c.RealIP(),
		}
		if err := db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				services.RecordAuthEvent("signup", "conflict")
				return c.JSON(http.StatusConflict, map[string]string{"message": "User already exists"})
			}
			return err
		}

		services.RecordAuthEvent("signup", "ok")
		logger.Info("user signed up", zap.Uint("user_id", user.ID))
		return m.issue(c, http.StatusCreated, user)
	})

	g.POST("/login", func(c echo.Context) error {
		db := c.Get("__db").(*gorm.DB)
		logger := c.Get("__logger").(*zap.Logger)

		in := new(models.LoginIn)
		if err := c.Bind(in); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		}
		in.Email = models.NormalizeEmail(in.Email)
		if err := c.Validate(in); err != nil {
			return err
		}

		var user models.UserAccount
		r := db.Where("email = ?", in.Email).Limit(1).Find(&user)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			services.RecordAuthEvent("login", "invalid")
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		}
		if err := services.VerifyPassword(user.Password, in.Password); err != nil {
			if errors.Is(err, services.ErrPasswordMismatch) {
				services.RecordAuthEvent("login", "invalid")
				return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			}
			return err
		}

		if err := db.Model(&user).Update("last_ip", c.RealIP()).Error; err != nil {
			logger.Warn("failed to record login ip", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		services.RecordAuthEvent("login", "ok")
		return m.issue(c, http.StatusOK, user)
	})

	g.GET("/me", func(c echo.Context) error {
		user := c.Get("currentUser").(models.UserAccount)
		return c.JSON(http.StatusOK, user.Out())
	}, jwtMiddleware, UserMiddleware)
}
