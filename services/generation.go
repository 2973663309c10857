package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"studioapi/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrModelOverloaded is the transient failure clients may retry.
var ErrModelOverloaded = errors.New("model overloaded")

const (
	DefaultHistoryLimit = 5
	MaxHistoryLimit     = 50
)

type ProcessJob struct {
	Prompt      string
	Style       models.Style
	ImageKey    string
	ContentType string
}

type ProcessResult struct {
	ImageKey string
}

// Processor turns an uploaded image and prompt into a result image.
type Processor interface {
	Process(ctx context.Context, job ProcessJob) (*ProcessResult, error)
}

type RandomSource interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

const (
	simulatedBaseDelay   = time.Second
	simulatedDelaySpread = time.Second
	DefaultFailureRate   = 0.2
)

// SimulatedProcessor waits a random 1-2s and then fails with
// ErrModelOverloaded at FailureRate, echoing the input image otherwise.
// The wait does not observe ctx.
type SimulatedProcessor struct {
	Random      RandomSource
	Sleep       func(time.Duration)
	FailureRate float64
}

func NewSimulatedProcessor() *SimulatedProcessor {
	return &SimulatedProcessor{
		Random:      globalRandom{},
		Sleep:       time.Sleep,
		FailureRate: DefaultFailureRate,
	}
}

func (p *SimulatedProcessor) Process(_ context.Context, job ProcessJob) (*ProcessResult, error) {
	random := p.Random
	if random == nil {
		random = globalRandom{}
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	sleep(SimulatedDelay(random.Float64()))
	if random.Float64() < p.FailureRate {
		return nil, ErrModelOverloaded
	}
	return &ProcessResult{ImageKey: job.ImageKey}, nil
}

// SimulatedDelay maps a draw in [0, 1) onto [1s, 2s).
func SimulatedDelay(draw float64) time.Duration {
	return simulatedBaseDelay + time.Duration(draw*float64(simulatedDelaySpread))
}

type GenerationStore interface {
	Append(ctx context.Context, generation *models.Generation) error
	ListByOwner(ctx context.Context, ownerID uint, limit int) ([]models.Generation, error)
}

type GormGenerationStore struct {
	DB *gorm.DB
}

func (s *GormGenerationStore) Append(ctx context.Context, generation *models.Generation) error {
	return s.DB.WithContext(ctx).Create(generation).Error
}

func (s *GormGenerationStore) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]models.Generation, error) {
	var generations []models.Generation
	err := s.DB.WithContext(ctx).
		Where("user_account_id = ?", ownerID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&generations).Error
	return generations, err
}

type CreateGenerationInput struct {
	OwnerID     uint
	Prompt      string
	Style       models.Style
	ImageKey    string
	ContentType string
}

type GenerationService struct {
	Processor     Processor
	Store         GenerationStore
	Logger        *zap.Logger
	ProcessorName string
	Now           func() time.Time
}

// Create runs the processor once and stores a completed record only when it
// succeeds. Processing errors are returned as is and nothing is stored.
func (s *GenerationService) Create(ctx context.Context, in CreateGenerationInput) (*models.Generation, error) {
	logger := s.logger().With(zap.Uint("user_id", in.OwnerID), zap.String("image_key", in.ImageKey))

	start := time.Now()
	result, err := s.Processor.Process(ctx, ProcessJob{
		Prompt:      in.Prompt,
		Style:       in.Style,
		ImageKey:    in.ImageKey,
		ContentType: in.ContentType,
	})
	generationDuration.WithLabelValues(s.processorName()).Observe(time.Since(start).Seconds())

	if errors.Is(err, ErrModelOverloaded) {
		generationOutcomes.WithLabelValues(OutcomeOverloaded).Inc()
		logger.Warn("generation rejected, model overloaded")
		return nil, err
	}
	if err != nil {
		generationOutcomes.WithLabelValues(OutcomeError).Inc()
		logger.Error("generation processing failed", zap.Error(err))
		return nil, fmt.Errorf("process generation: %w", err)
	}

	generation := &models.Generation{
		UserAccountID:    in.OwnerID,
		Prompt:           in.Prompt,
		Style:            in.Style,
		ImageKey:         result.ImageKey,
		OriginalImageKey: in.ImageKey,
		Status:           models.GenerationCompleted,
	}
	generation.CreatedAt = s.now()

	// A finished run is stored even if the caller has gone away meanwhile.
	if err := s.Store.Append(context.WithoutCancel(ctx), generation); err != nil {
		generationOutcomes.WithLabelValues(OutcomeError).Inc()
		logger.Error("failed to store generation", zap.Error(err))
		return nil, fmt.Errorf("store generation: %w", err)
	}

	generationOutcomes.WithLabelValues(OutcomeCompleted).Inc()
	logger.Info("generation completed", zap.Uint("generation_id", generation.ID))
	return generation, nil
}

// History returns the owner's most recent generations, newest first.
func (s *GenerationService) History(ctx context.Context, ownerID uint, limit int) ([]models.Generation, error) {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.Store.ListByOwner(ctx, ownerID, limit)
}

// ParseHistoryLimit reads a limit query value. Missing, malformed or
// non-positive values give the default page size.
func ParseHistoryLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *GenerationService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *GenerationService) processorName() string {
	if s.ProcessorName == "" {
		return "unknown"
	}
	return s.ProcessorName
}

func (s *GenerationService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
