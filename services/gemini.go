package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type LLMModelName int32

const (
	Flash25Image LLMModelName = iota
)

func (t LLMModelName) String() string {
	return "gemini-2.5-flash-image-preview"
}

var stylePrompts = map[string]string{
	"realistic":  "photorealistic, natural lighting, true-to-life detail",
	"artistic":   "painterly, expressive brush strokes, bold color",
	"minimalist": "minimalist, clean shapes, limited palette, generous negative space",
	"vintage":    "vintage film photograph, warm faded tones, light grain",
}

// GeminiProcessor edits the uploaded image with a Gemini image model and
// stores the first returned image.
type GeminiProcessor struct {
	APIKey  string
	Model   LLMModelName
	Storage ImageStorage
	Logger  *zap.Logger
}

func (p *GeminiProcessor) Process(ctx context.Context, job ProcessJob) (*ProcessResult, error) {
	source, err := p.Storage.Open(ctx, job.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("open source image: %w", err)
	}
	imageBytes, err := io.ReadAll(source)
	source.Close()
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: job.ContentType, Data: imageBytes}},
		{Text: job.Prompt},
	}
	result, err := client.Models.GenerateContent(ctx, p.Model.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    floatPointer(1),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: systemInstruction(string(job.Style))},
			},
		},
	})
	if err != nil {
		if isOverloaded(err) {
			return nil, ErrModelOverloaded
		}
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}
	if result.UsageMetadata != nil {
		p.logger().Info("gemini generation usage",
			zap.Int32("input_tokens", result.UsageMetadata.PromptTokenCount),
			zap.Int32("output_tokens", result.UsageMetadata.CandidatesTokenCount),
			zap.Int32("total_tokens", result.UsageMetadata.TotalTokenCount),
		)
	}

	images, err := InlineImages(result)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.New("model returned no image")
	}

	contentType := http.DetectContentType(images[0])
	key, err := p.Storage.Save(ctx, "generated"+ImageExtension("", contentType), contentType, bytes.NewReader(images[0]))
	if err != nil {
		return nil, fmt.Errorf("store generated image: %w", err)
	}
	return &ProcessResult{ImageKey: key}, nil
}

func (p *GeminiProcessor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func systemInstruction(style string) string {
	return "Transform the provided image following the user's prompt. Keep the main subject recognizable. " +
		"Render it in this style: " + stylePrompts[style] + ". Return a single image."
}

// InlineImages collects image parts from all candidates.
func InlineImages(result *genai.GenerateContentResponse) ([][]byte, error) {
	if result == nil {
		return nil, errors.New("empty response")
	}

	var images [][]byte
	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, fmt.Errorf("content blocked by safety setting: %s", rating.Category)
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") && len(part.InlineData.Data) > 0 {
				images = append(images, part.InlineData.Data)
			}
		}
	}
	return images, nil
}

// isOverloaded reports whether the API answered with a capacity error.
func isOverloaded(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return overloadedCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return overloadedCode(apiErrPtr.Code)
	}
	return false
}

func overloadedCode(code int) bool {
	return code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests
}
