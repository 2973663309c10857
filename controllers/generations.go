package controllers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"studioapi/models"
	"studioapi/services"
	"studioapi/tasks"

	"github.com/labstack/echo/v4"
)

type GenerationController struct {
	Service     *services.GenerationService
	Storage     services.ImageStorage
	Discarder   *tasks.Discarder
	MaxFileSize int64
}

func (m *GenerationController) GenerationRoutes(g *echo.Group) {
	g.POST("", m.create)
	g.GET("", m.list)
}

func (m *GenerationController) create(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	ctx := c.Request().Context()

	in := new(models.GenerationIn)
	if err := c.Bind(in); err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return fileTooLarge(c)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(in); err != nil {
		return err
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return fileTooLarge(c)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Image file is required"})
	}
	if fileHeader.Size > m.MaxFileSize {
		return fileTooLarge(c)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	contentType, err := services.DetectImageType(head[:n])
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Only JPEG and PNG images are allowed"})
	}

	imageKey, err := m.Storage.Save(ctx, fileHeader.Filename, contentType, io.MultiReader(bytes.NewReader(head[:n]), src))
	if err != nil {
		return err
	}

	generation, err := m.Service.Create(ctx, services.CreateGenerationInput{
		OwnerID:     user.ID,
		Prompt:      in.Prompt,
		Style:       models.Style(in.Style),
		ImageKey:    imageKey,
		ContentType: contentType,
	})
	if err != nil {
		m.Discarder.Discard(ctx, imageKey)
		if errors.Is(err, services.ErrModelOverloaded) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "Model overloaded"})
		}
		return err
	}

	out, err := m.present(ctx, *generation)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (m *GenerationController) list(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	ctx := c.Request().Context()

	generations, err := m.Service.History(ctx, user.ID, services.ParseHistoryLimit(c.QueryParam("limit")))
	if err != nil {
		return err
	}
	out := make([]models.GenerationOut, 0, len(generations))
	for _, generation := range generations {
		item, err := m.present(ctx, generation)
		if err != nil {
			return err
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, out)
}

func (m *GenerationController) present(ctx context.Context, generation models.Generation) (models.GenerationOut, error) {
	imageURL, err := m.Storage.URL(ctx, generation.ImageKey)
	if err != nil {
		return models.GenerationOut{}, err
	}
	originalImageURL, err := m.Storage.URL(ctx, generation.OriginalImageKey)
	if err != nil {
		return models.GenerationOut{}, err
	}
	return generation.Out(imageURL, originalImageURL), nil
}
