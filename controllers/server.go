package controllers

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"studioapi/config"
	"studioapi/models"
	"studioapi/services"
	"studioapi/tasks"

	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("style", models.ValidateStyle)
	v.RegisterValidation("hasupper", models.ValidateHasUpper)
	v.RegisterValidation("haslower", models.ValidateHasLower)
	v.RegisterValidation("hasdigit", models.ValidateHasDigit)
	return &CustomValidator{validator: v}
}

func SetupServer(
	db *gorm.DB,
	cfg *config.Config,
	storage services.ImageStorage,
	processor services.Processor,
	asynqClient *asynq.Client,
	logger *zap.Logger,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger)

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__logger", logger)
			return next(c)
		}
	})
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, models.HealthOut{Status: "ok", Timestamp: time.Now().UTC()})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if local, ok := storage.(*services.LocalStorage); ok {
		e.Static(strings.TrimSuffix(services.LocalURLPrefix, "/"), local.Dir)
	}

	jwtMiddleware := echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		},
	})

	authController := AuthController{Config: cfg}
	authGroup := e.Group("/api/auth")
	authController.AuthRoutes(authGroup, jwtMiddleware)

	generationController := GenerationController{
		Service: &services.GenerationService{
			Processor:     processor,
			Store:         &services.GormGenerationStore{DB: db},
			Logger:        logger.Named("generation"),
			ProcessorName: cfg.Processor,
		},
		Storage:     storage,
		Discarder:   &tasks.Discarder{Client: asynqClient, Storage: storage, Logger: logger.Named("discard")},
		MaxFileSize: cfg.MaxFileSize,
	}
	generationGroup := e.Group("/api/generations", jwtMiddleware, UserMiddleware, UploadLimit(cfg.MaxFileSize))
	generationController.GenerationRoutes(generationGroup)

	return e
}
