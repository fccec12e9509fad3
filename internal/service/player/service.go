package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

const maxNameLength = 32

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NormalizeName folds full-width and compatibility forms (NFKC) and trims
// surrounding space, so "Ａ " and "A" name the same player.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(norm.NFKC.String(name))
	if n == "" {
		return "", fmt.Errorf("%w: empty name", appErr.ErrInvalidPlayerName)
	}
	if utf8.RuneCountInString(n) > maxNameLength {
		return "", fmt.Errorf("%w: name longer than %d characters", appErr.ErrInvalidPlayerName, maxNameLength)
	}
	return n, nil
}

// NormalizeNames normalises every name and rejects duplicates.
func NormalizeNames(names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		n, err := NormalizeName(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %q listed twice", appErr.ErrInvalidPlayerName, n)
		}
		seen[n] = struct{}{}
		out[i] = n
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]model.Player, error) {
	var players []model.Player
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func (s *Service) Add(ctx context.Context, name string) (*model.Player, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Player{}).Where("name = ?", n).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", appErr.ErrPlayerExists, n)
	}

	p := model.Player{Name: n}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	logger.Log.Info("player registered", zap.String("name", n))
	return &p, nil
}

func (s *Service) Remove(ctx context.Context, name string) error {
	n, err := NormalizeName(name)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("name = ?", n).Delete(&model.Player{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErr.ErrPlayerNotFound
	}
	return nil
}

// Ensure registers every name not yet known. names must already be
// normalised.
func Ensure(tx *gorm.DB, names []string) error {
	for _, n := range names {
		p := model.Player{Name: n}
		if err := tx.Where(model.Player{Name: n}).FirstOrCreate(&p).Error; err != nil {
			return err
		}
	}
	return nil
}

// Stats aggregates a player's results over every recorded match.
func (s *Service) Stats(ctx context.Context, name string) (*engine.PlayerStats, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	var p model.Player
	if err := s.db.WithContext(ctx).Where("name = ?", n).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrPlayerNotFound
		}
		return nil, err
	}

	var matches []model.Match
	if err := s.db.WithContext(ctx).Order("match_set_id ASC, id ASC").Find(&matches).Error; err != nil {
		return nil, err
	}
	results := make([][]engine.Outcome, 0, len(matches))
	for i := range matches {
		outcomes, err := matches[i].Outcomes()
		if err != nil {
			return nil, err
		}
		results = append(results, outcomes)
	}

	stats := engine.CollectStats([]string{n}, results)
	return &stats[0], nil
}
