package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const rulesKey = "rules"

type Service struct {
	db       *gorm.DB
	fallback engine.Rules
}

// NewService uses fallback when no global rules are stored. Invalid
// fallback rules are replaced by engine.DefaultRules.
func NewService(db *gorm.DB, fallback engine.Rules) *Service {
	if fallback.Validate() != nil {
		fallback = engine.DefaultRules()
	}
	return &Service{db: db, fallback: fallback.Normalize()}
}

func (s *Service) GetRules(ctx context.Context) (engine.Rules, error) {
	var setting model.Setting
	err := s.db.WithContext(ctx).Where("name = ?", rulesKey).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fallback.Normalize(), nil
		}
		return engine.Rules{}, err
	}

	var rules engine.Rules
	if err := json.Unmarshal(setting.ValueJSON, &rules); err != nil {
		return engine.Rules{}, fmt.Errorf("decode stored rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		logger.Log.Warn("stored rules are invalid, using fallback", zap.Error(err))
		return s.fallback.Normalize(), nil
	}
	return rules.Normalize(), nil
}

func (s *Service) SaveRules(ctx context.Context, rules engine.Rules) (engine.Rules, error) {
	if err := rules.Validate(); err != nil {
		return engine.Rules{}, err
	}
	rules = rules.Normalize()
	setting := model.Setting{Name: rulesKey, ValueJSON: model.MustJSON(rules)}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_json", "updated_at"}),
	}).Create(&setting).Error; err != nil {
		return engine.Rules{}, err
	}
	logger.Log.Info("global rules saved",
		zap.Int("startScore", rules.StartScore),
		zap.Int("returnScore", rules.ReturnScore),
		zap.Ints("uma", rules.Uma),
	)
	return rules, nil
}

// ResetRules drops the stored rules so the fallback applies again.
func (s *Service) ResetRules(ctx context.Context) (engine.Rules, error) {
	if err := s.db.WithContext(ctx).Where("name = ?", rulesKey).Delete(&model.Setting{}).Error; err != nil {
		return engine.Rules{}, err
	}
	return s.fallback.Normalize(), nil
}
