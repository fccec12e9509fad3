package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/player"
	"jonglog-service/internal/service/settings"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Service struct {
	db       *gorm.DB
	settings *settings.Service
	observer feed.Observer
}

func NewService(db *gorm.DB, settingsSvc *settings.Service, observer feed.Observer) *Service {
	if observer == nil {
		observer = feed.Nop{}
	}
	return &Service{db: db, settings: settingsSvc, observer: observer}
}

type CreateParams struct {
	Date     time.Time
	Players  []string
	Rules    *engine.Rules
	Rate     float64
	LeagueID *int64
}

type Summary struct {
	ID         int64        `json:"id"`
	Date       string       `json:"date"`
	Players    []string     `json:"players"`
	Rules      engine.Rules `json:"rules"`
	Rate       float64      `json:"rate"`
	Locked     bool         `json:"locked"`
	LeagueID   *int64       `json:"leagueId,omitempty"`
	MatchCount int64        `json:"matchCount"`
	CreatedAt  time.Time    `json:"createdAt"`
}

type MatchView struct {
	ID        int64            `json:"id"`
	Mode      engine.Mode      `json:"mode"`
	Outcomes  []engine.Outcome `json:"outcomes"`
	CreatedAt time.Time        `json:"createdAt"`
}

type ExpenseView struct {
	ID        int64     `json:"id"`
	Note      string    `json:"note"`
	Payer     string    `json:"payer"`
	Amount    int64     `json:"amount"`
	Targets   []string  `json:"targets"`
	CreatedAt time.Time `json:"createdAt"`
}

type Detail struct {
	Summary
	Matches  []MatchView   `json:"matches"`
	Expenses []ExpenseView `json:"expenses"`
}

type ListResult struct {
	Items []Summary `json:"items"`
	Total int64     `json:"total"`
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Detail, error) {
	players, err := player.NormalizeNames(params.Players)
	if err != nil {
		return nil, err
	}
	if len(players) != engine.PlayerCount {
		return nil, fmt.Errorf("%w: a session needs exactly %d players", appErr.ErrInvalidSession, engine.PlayerCount)
	}
	if err := validateRate(params.Rate); err != nil {
		return nil, err
	}

	var rules engine.Rules
	if params.Rules != nil {
		if err := params.Rules.Validate(); err != nil {
			return nil, err
		}
		rules = params.Rules.Normalize()
	} else {
		rules, err = s.settings.GetRules(ctx)
		if err != nil {
			return nil, err
		}
	}

	date := params.Date
	if date.IsZero() {
		date = time.Now()
	}
	ms := model.MatchSet{
		Date:        truncateDay(date),
		PlayersJSON: model.MustJSON(players),
		RulesJSON:   model.MustJSON(rules),
		Rate:        params.Rate,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := player.Ensure(tx, players); err != nil {
			return err
		}
		if params.LeagueID != nil {
			if err := checkLeagueMembership(tx, *params.LeagueID, players); err != nil {
				return err
			}
			ms.LeagueID = params.LeagueID
		}
		return tx.Create(&ms).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("session created",
		zap.Int64("sessionID", ms.ID),
		zap.Strings("players", players),
		zap.Float64("rate", ms.Rate),
	)
	return s.Get(ctx, ms.ID)
}

func (s *Service) List(ctx context.Context, page, size int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.MatchSet{}).Count(&total).Error; err != nil {
		return nil, err
	}

	items := []Summary{}
	if total > 0 {
		var sets []model.MatchSet
		offset := (page - 1) * size
		if err := s.db.WithContext(ctx).
			Model(&model.MatchSet{}).
			Order("date DESC, id DESC").
			Limit(size).
			Offset(offset).
			Find(&sets).Error; err != nil {
			return nil, err
		}
		counts, err := matchCounts(s.db.WithContext(ctx), sets)
		if err != nil {
			return nil, err
		}
		for i := range sets {
			summary, err := toSummary(&sets[i], counts[sets[i].ID])
			if err != nil {
				return nil, err
			}
			items = append(items, *summary)
		}
	}

	return &ListResult{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	db := s.db.WithContext(ctx)
	ms, err := Load(db, id)
	if err != nil {
		return nil, err
	}
	matches, err := LoadMatches(db, id)
	if err != nil {
		return nil, err
	}
	expenses, err := LoadExpenses(db, id)
	if err != nil {
		return nil, err
	}

	summary, err := toSummary(ms, int64(len(matches)))
	if err != nil {
		return nil, err
	}
	detail := &Detail{Summary: *summary, Matches: []MatchView{}, Expenses: []ExpenseView{}}
	for i := range matches {
		view, err := ToMatchView(&matches[i])
		if err != nil {
			return nil, err
		}
		detail.Matches = append(detail.Matches, *view)
	}
	for i := range expenses {
		view, err := ToExpenseView(&expenses[i])
		if err != nil {
			return nil, err
		}
		detail.Expenses = append(detail.Expenses, *view)
	}
	return detail, nil
}

func (s *Service) SetRate(ctx context.Context, id int64, rate float64) (*Summary, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := LoadForWrite(tx, id); err != nil {
			return err
		}
		return tx.Model(&model.MatchSet{}).Where("id = ?", id).Update("rate", rate).Error
	})
	if err != nil {
		return nil, err
	}
	s.observer.SessionChanged(ctx, id, "rate")
	return s.summary(ctx, id)
}

// SetLocked locks or unlocks a session. Unlocking is always allowed.
func (s *Service) SetLocked(ctx context.Context, id int64, locked bool) (*Summary, error) {
	result := s.db.WithContext(ctx).Model(&model.MatchSet{}).Where("id = ?", id).Update("locked", locked)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Updating to the current value reports zero rows on some drivers.
		if _, err := Load(s.db.WithContext(ctx), id); err != nil {
			return nil, err
		}
	}
	logger.Log.Info("session lock changed", zap.Int64("sessionID", id), zap.Bool("locked", locked))
	s.observer.SessionChanged(ctx, id, "lock")
	return s.summary(ctx, id)
}

// UpdateRules replaces the rules snapshot. Recorded matches were scored with
// the old rules, so a change is refused once any exist.
func (s *Service) UpdateRules(ctx context.Context, id int64, rules engine.Rules) (*Summary, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	rules = rules.Normalize()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ms, err := LoadForWrite(tx, id)
		if err != nil {
			return err
		}
		current, err := ms.Rules()
		if err != nil {
			return err
		}
		if current.Equal(rules) {
			return nil
		}
		var count int64
		if err := tx.Model(&model.Match{}).Where("match_set_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: session %d has %d matches", appErr.ErrRulesInUse, id, count)
		}
		return tx.Model(&model.MatchSet{}).Where("id = ?", id).Update("rules_json", model.MustJSON(rules)).Error
	})
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := LoadForWrite(tx, id); err != nil {
			return err
		}
		if err := tx.Where("match_set_id = ?", id).Delete(&model.Match{}).Error; err != nil {
			return err
		}
		if err := tx.Where("match_set_id = ?", id).Delete(&model.Expense{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.MatchSet{}, id).Error
	})
	if err != nil {
		return err
	}
	logger.Log.Info("session deleted", zap.Int64("sessionID", id))
	s.observer.SessionChanged(ctx, id, "deleted")
	return nil
}

// AttachLeague links a session to a league all four players belong to.
func (s *Service) AttachLeague(ctx context.Context, id, leagueID int64) (*Summary, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ms, err := Load(tx, id)
		if err != nil {
			return err
		}
		players, err := ms.Players()
		if err != nil {
			return err
		}
		if err := checkLeagueMembership(tx, leagueID, players); err != nil {
			return err
		}
		return tx.Model(&model.MatchSet{}).Where("id = ?", id).Update("league_id", leagueID).Error
	})
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, id)
}

func (s *Service) DetachLeague(ctx context.Context, id int64) (*Summary, error) {
	if _, err := Load(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.MatchSet{}).Where("id = ?", id).Update("league_id", nil).Error; err != nil {
		return nil, err
	}
	return s.summary(ctx, id)
}

func (s *Service) summary(ctx context.Context, id int64) (*Summary, error) {
	db := s.db.WithContext(ctx)
	ms, err := Load(db, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&model.Match{}).Where("match_set_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	return toSummary(ms, count)
}

func checkLeagueMembership(tx *gorm.DB, leagueID int64, players []string) error {
	var league model.League
	if err := tx.First(&league, leagueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.ErrLeagueNotFound
		}
		return err
	}
	if league.Status == "completed" {
		return fmt.Errorf("%w: league %d is completed", appErr.ErrInvalidLeague, leagueID)
	}
	members, err := league.Players()
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m] = struct{}{}
	}
	for _, p := range players {
		if _, ok := known[p]; !ok {
			return fmt.Errorf("%w: %s is not a member of league %d", appErr.ErrInvalidLeague, p, leagueID)
		}
	}
	return nil
}

func matchCounts(db *gorm.DB, sets []model.MatchSet) (map[int64]int64, error) {
	if len(sets) == 0 {
		return map[int64]int64{}, nil
	}
	ids := make([]int64, len(sets))
	for i := range sets {
		ids[i] = sets[i].ID
	}
	var rows []struct {
		MatchSetID int64
		Count      int64
	}
	if err := db.Model(&model.Match{}).
		Select("match_set_id, COUNT(*) AS count").
		Where("match_set_id IN ?", ids).
		Group("match_set_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.MatchSetID] = r.Count
	}
	return out, nil
}

func toSummary(ms *model.MatchSet, matchCount int64) (*Summary, error) {
	players, err := ms.Players()
	if err != nil {
		return nil, err
	}
	rules, err := ms.Rules()
	if err != nil {
		return nil, err
	}
	return &Summary{
		ID:         ms.ID,
		Date:       ms.Date.Format(dateLayout),
		Players:    players,
		Rules:      rules,
		Rate:       ms.Rate,
		Locked:     ms.Locked,
		LeagueID:   ms.LeagueID,
		MatchCount: matchCount,
		CreatedAt:  ms.CreatedAt,
	}, nil
}

func validateRate(rate float64) error {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: rate must be a non-negative number", appErr.ErrInvalidSession)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", appErr.ErrInvalidSession)
	}
	return t, nil
}
