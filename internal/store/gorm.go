package store

import (
	"context"
	"fmt"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the SQLite-backed implementation of the Store interface.
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store
var _ Store = (*GormStore)(nil)

// NewSQLite opens (or creates) the SQLite database at path and migrates the
// schema.
func NewSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&models.Provider{},
		&models.Brand{},
		&models.Entity{},
		&models.Prompt{},
		&models.Mention{},
		&models.CompetitiveStat{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Infof("Database ready at %s", path)
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing gorm connection. Used by tests with an
// in-memory SQLite database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Seed inserts providers, brands, entities and prompts in one transaction.
// Existing rows with the same id are left alone, so seeding is safe to repeat
// on an already provisioned database.
func (s *GormStore) Seed(ctx context.Context, providers []models.Provider, brands []models.Brand, entities []models.Entity, prompts []models.Prompt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(providers) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&providers).Error; err != nil {
				return fmt.Errorf("failed to seed providers: %w", err)
			}
		}
		if len(brands) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&brands).Error; err != nil {
				return fmt.Errorf("failed to seed brands: %w", err)
			}
		}
		if len(entities) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entities).Error; err != nil {
				return fmt.Errorf("failed to seed entities: %w", err)
			}
		}
		if len(prompts) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&prompts).Error; err != nil {
				return fmt.Errorf("failed to seed prompts: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) ListProviders(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if err := s.db.WithContext(ctx).Order("id").Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (s *GormStore) ListEnabledProviders(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id").Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled providers: %w", err)
	}
	return providers, nil
}

func (s *GormStore) DisableProvider(ctx context.Context, providerID, reason string) error {
	result := s.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", providerID).
		Updates(map[string]interface{}{
			"enabled":         false,
			"disabled_reason": reason,
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to disable provider %s: %w", providerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("provider %s not found", providerID)
	}
	return nil
}

func (s *GormStore) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	if err := s.db.WithContext(ctx).Order("id").Find(&brands).Error; err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

func (s *GormStore) GetBrand(ctx context.Context, brandID string) (*models.Brand, error) {
	var brand models.Brand
	if err := s.db.WithContext(ctx).First(&brand, "id = ?", brandID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("brand %s not found", brandID)
		}
		return nil, fmt.Errorf("failed to get brand %s: %w", brandID, err)
	}
	return &brand, nil
}

// ListTrackedEntities returns the brand entity plus its accepted competitors.
func (s *GormStore) ListTrackedEntities(ctx context.Context, brandID string) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.db.WithContext(ctx).
		Where("brand_id = ? AND (kind = ? OR accepted = ?)", brandID, models.EntityKindBrand, true).
		Order("id").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entities for brand %s: %w", brandID, err)
	}
	return entities, nil
}

func (s *GormStore) ListPromptsByStatus(ctx context.Context, brandID, status string) ([]models.Prompt, error) {
	var prompts []models.Prompt
	if err := s.db.WithContext(ctx).Where("brand_id = ? AND status = ?", brandID, status).Order("id").Find(&prompts).Error; err != nil {
		return nil, fmt.Errorf("failed to list prompts for brand %s: %w", brandID, err)
	}
	return prompts, nil
}

// SavePromptResult persists a successful analysis: result fields and
// completed_at are written and any previous failure state is cleared.
func (s *GormStore) SavePromptResult(ctx context.Context, prompt *models.Prompt) error {
	result := s.db.WithContext(ctx).Model(&models.Prompt{}).
		Where("id = ?", prompt.ID).
		Updates(map[string]interface{}{
			"completed_at":  prompt.CompletedAt,
			"failed_at":     nil,
			"error_message": "",
			"sentiment":     prompt.Sentiment,
			"position":      prompt.Position,
			"visibility":    prompt.Visibility,
			"volume":        prompt.Volume,
			"raw_response":  prompt.RawResponse,
			"provider_id":   prompt.ProviderID,
			"resources":     prompt.Resources,
			"session_id":    prompt.SessionID,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to save result for prompt %s: %w", prompt.ID, result.Error)
	}
	return nil
}

// MarkPromptFailed stamps the failure on the prompt. Result fields from any
// previous successful analysis are left untouched; completed_at is cleared to
// keep the three state fields mutually exclusive.
func (s *GormStore) MarkPromptFailed(ctx context.Context, promptID, message string, failedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Prompt{}).
		Where("id = ?", promptID).
		Updates(map[string]interface{}{
			"completed_at":  nil,
			"failed_at":     failedAt,
			"error_message": message,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark prompt %s failed: %w", promptID, result.Error)
	}
	return nil
}

func (s *GormStore) CountAnalyzedPrompts(ctx context.Context, brandID string, windowStart, windowEnd time.Time, providerID string) (int, error) {
	query := s.db.WithContext(ctx).Model(&models.Prompt{}).
		Where("brand_id = ? AND completed_at >= ? AND completed_at <= ?", brandID, windowStart, windowEnd)
	if providerID != "" {
		query = query.Where("provider_id = ?", providerID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count analyzed prompts: %w", err)
	}
	return int(count), nil
}

func (s *GormStore) CreateMentions(ctx context.Context, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&mentions).Error; err != nil {
		return fmt.Errorf("failed to create mentions: %w", err)
	}
	return nil
}

func (s *GormStore) ListMentions(ctx context.Context, brandID, entityID string, windowStart, windowEnd time.Time, providerID string) ([]models.Mention, error) {
	query := s.db.WithContext(ctx).
		Where("brand_id = ? AND created_at >= ? AND created_at <= ?", brandID, windowStart, windowEnd)
	if entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}
	if providerID != "" {
		query = query.Where("provider_id = ?", providerID)
	}

	var mentions []models.Mention
	if err := query.Order("created_at").Find(&mentions).Error; err != nil {
		return nil, fmt.Errorf("failed to list mentions: %w", err)
	}
	return mentions, nil
}

func (s *GormStore) CreateStats(ctx context.Context, stats []models.CompetitiveStat) error {
	if len(stats) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&stats).Error; err != nil {
		return fmt.Errorf("failed to create stats: %w", err)
	}
	return nil
}

func (s *GormStore) LatestStatBefore(ctx context.Context, brandID, entityID, providerID string, before time.Time) (*models.CompetitiveStat, error) {
	var stat models.CompetitiveStat
	err := s.db.WithContext(ctx).
		Where("brand_id = ? AND entity_id = ? AND provider_id = ? AND analyzed_at < ?", brandID, entityID, providerID, before).
		Order("analyzed_at DESC").
		First(&stat).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch previous stat: %w", err)
	}
	return &stat, nil
}

// LatestStats returns the most recent unscoped snapshot per entity for the
// brand, newest first by entity id.
func (s *GormStore) LatestStats(ctx context.Context, brandID string) ([]models.CompetitiveStat, error) {
	var stats []models.CompetitiveStat
	err := s.db.WithContext(ctx).
		Where("brand_id = ? AND provider_id = ?", brandID, "").
		Order("analyzed_at DESC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stats for brand %s: %w", brandID, err)
	}

	seen := make(map[string]bool)
	var latest []models.CompetitiveStat
	for _, stat := range stats {
		if !seen[stat.EntityID] {
			seen[stat.EntityID] = true
			latest = append(latest, stat)
		}
	}
	return latest, nil
}
