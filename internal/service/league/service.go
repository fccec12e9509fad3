package league

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/report"
	"jonglog-service/internal/service/player"
	"jonglog-service/internal/service/session"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RuleCount  = "count"
	RulePeriod = "period"

	StatusActive    = "active"
	StatusCompleted = "completed"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type Rule struct {
	Type  string     `json:"type"`
	Count int        `json:"count,omitempty"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type CreateParams struct {
	Title   string
	Players []string
	Rule    Rule
}

type Progress struct {
	Played  int     `json:"played"`
	Target  int     `json:"target,omitempty"`
	Percent float64 `json:"percent"`
}

type Summary struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Players      []string  `json:"players"`
	Rule         Rule      `json:"rule"`
	Status       string    `json:"status"`
	SessionCount int64     `json:"sessionCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Detail struct {
	Summary
	Progress Progress          `json:"progress"`
	Sessions []session.Summary `json:"sessions"`
}

// CreateResult reports how many existing sessions a period league picked up.
type CreateResult struct {
	League *Detail `json:"league"`
	Linked int     `json:"linked"`
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", appErr.ErrInvalidLeague)
	}
	players, err := player.NormalizeNames(params.Players)
	if err != nil {
		return nil, err
	}
	if len(players) < engine.PlayerCount {
		return nil, fmt.Errorf("%w: a league needs at least %d players", appErr.ErrInvalidLeague, engine.PlayerCount)
	}

	l := model.League{
		Title:       title,
		PlayersJSON: model.MustJSON(players),
		RuleType:    params.Rule.Type,
		Status:      StatusActive,
	}
	switch params.Rule.Type {
	case RuleCount:
		if params.Rule.Count <= 0 {
			return nil, fmt.Errorf("%w: game count must be positive", appErr.ErrInvalidLeague)
		}
		l.RuleCount = params.Rule.Count
	case RulePeriod:
		if params.Rule.Start == nil || params.Rule.End == nil {
			return nil, fmt.Errorf("%w: a period needs start and end dates", appErr.ErrInvalidLeague)
		}
		start, end := dayStart(*params.Rule.Start), dayStart(*params.Rule.End)
		if end.Before(start) {
			return nil, fmt.Errorf("%w: end date is before start date", appErr.ErrInvalidLeague)
		}
		l.RuleStart, l.RuleEnd = &start, &end
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", appErr.ErrInvalidLeague, params.Rule.Type)
	}

	var linked int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := player.Ensure(tx, players); err != nil {
			return err
		}
		if err := tx.Create(&l).Error; err != nil {
			return err
		}
		if l.RuleType != RulePeriod {
			return nil
		}
		n, err := linkPeriodSessions(tx, &l, players)
		linked = n
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("league created",
		zap.Int64("leagueID", l.ID),
		zap.String("rule", l.RuleType),
		zap.Int("linkedSessions", linked),
	)
	detail, err := s.Get(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{League: detail, Linked: linked}, nil
}

// linkPeriodSessions attaches unlinked sessions dated inside the period
// whose four players are all league members.
func linkPeriodSessions(tx *gorm.DB, l *model.League, members []string) (int, error) {
	var sets []model.MatchSet
	if err := tx.Where("league_id IS NULL AND date >= ? AND date < ?", *l.RuleStart, l.RuleEnd.AddDate(0, 0, 1)).
		Find(&sets).Error; err != nil {
		return 0, err
	}

	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m] = struct{}{}
	}

	linked := 0
	for i := range sets {
		players, err := sets[i].Players()
		if err != nil {
			return 0, err
		}
		if len(players) != engine.PlayerCount || !allKnown(players, known) {
			continue
		}
		if err := tx.Model(&model.MatchSet{}).Where("id = ?", sets[i].ID).Update("league_id", l.ID).Error; err != nil {
			return 0, err
		}
		linked++
	}
	return linked, nil
}

func (s *Service) List(ctx context.Context) ([]Summary, error) {
	var leagues []model.League
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&leagues).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		LeagueID int64
		Count    int64
	}
	if err := s.db.WithContext(ctx).Model(&model.MatchSet{}).
		Select("league_id, COUNT(*) AS count").
		Where("league_id IS NOT NULL").
		Group("league_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[int64]int64, len(rows))
	for _, r := range rows {
		counts[r.LeagueID] = r.Count
	}

	out := make([]Summary, 0, len(leagues))
	for i := range leagues {
		summary, err := toSummary(&leagues[i], counts[leagues[i].ID])
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sets, err := s.sessions(ctx, id)
	if err != nil {
		return nil, err
	}

	summary, err := toSummary(l, int64(len(sets)))
	if err != nil {
		return nil, err
	}
	detail := &Detail{Summary: *summary, Sessions: []session.Summary{}}

	played := 0
	for i := range sets {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Match{}).Where("match_set_id = ?", sets[i].ID).Count(&count).Error; err != nil {
			return nil, err
		}
		players, err := sets[i].Players()
		if err != nil {
			return nil, err
		}
		rules, err := sets[i].Rules()
		if err != nil {
			return nil, err
		}
		played += int(count)
		detail.Sessions = append(detail.Sessions, session.Summary{
			ID:         sets[i].ID,
			Date:       sets[i].Date.Format("2006-01-02"),
			Players:    players,
			Rules:      rules,
			Rate:       sets[i].Rate,
			Locked:     sets[i].Locked,
			LeagueID:   sets[i].LeagueID,
			MatchCount: count,
			CreatedAt:  sets[i].CreatedAt,
		})
	}
	detail.Progress = s.progress(l, played)
	return detail, nil
}

// progress is played/target for count leagues and elapsed time for period
// leagues, clamped to [0, 100].
func (s *Service) progress(l *model.League, played int) Progress {
	p := Progress{Played: played}
	switch l.RuleType {
	case RuleCount:
		p.Target = l.RuleCount
		if l.RuleCount > 0 {
			p.Percent = float64(played) / float64(l.RuleCount) * 100
		}
	case RulePeriod:
		if l.RuleStart == nil || l.RuleEnd == nil {
			break
		}
		end := l.RuleEnd.AddDate(0, 0, 1)
		total := end.Sub(*l.RuleStart)
		if total > 0 {
			p.Percent = float64(s.now().Sub(*l.RuleStart)) / float64(total) * 100
		}
	}
	p.Percent = math.Round(math.Max(0, math.Min(100, p.Percent))*10) / 10
	return p
}

func (s *Service) Complete(ctx context.Context, id int64) (*Summary, error) {
	result := s.db.WithContext(ctx).Model(&model.League{}).Where("id = ?", id).Update("status", StatusCompleted)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, appErr.ErrLeagueNotFound
	}
	logger.Log.Info("league completed", zap.Int64("leagueID", id))
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.MatchSet{}).Where("league_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	return toSummary(l, count)
}

// Delete removes the league and unlinks its sessions; the sessions stay.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.MatchSet{}).Where("league_id = ?", id).Update("league_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.League{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return appErr.ErrLeagueNotFound
		}
		return nil
	})
}

func (s *Service) UnlinkSession(ctx context.Context, id, sessionID int64) error {
	result := s.db.WithContext(ctx).Model(&model.MatchSet{}).
		Where("id = ? AND league_id = ?", sessionID, id).
		Update("league_id", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErr.ErrSessionNotFound
	}
	return nil
}

// Standings aggregates member stats over every linked session, ordered by
// total score.
func (s *Service) Standings(ctx context.Context, id int64) ([]engine.PlayerStats, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	players, err := l.Players()
	if err != nil {
		return nil, err
	}
	matches, err := s.matches(ctx, id)
	if err != nil {
		return nil, err
	}
	return engine.CollectStats(players, matches), nil
}

func (s *Service) Chart(ctx context.Context, id int64) ([]byte, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	players, err := l.Players()
	if err != nil {
		return nil, err
	}
	matches, err := s.matches(ctx, id)
	if err != nil {
		return nil, err
	}
	return report.CumulativeChart(l.Title, players, matches)
}

func (s *Service) load(ctx context.Context, id int64) (*model.League, error) {
	var l model.League
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrLeagueNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *Service) sessions(ctx context.Context, id int64) ([]model.MatchSet, error) {
	var sets []model.MatchSet
	if err := s.db.WithContext(ctx).Where("league_id = ?", id).Order("date ASC, id ASC").Find(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

// matches returns the outcomes of every linked session in date order.
func (s *Service) matches(ctx context.Context, id int64) ([][]engine.Outcome, error) {
	sets, err := s.sessions(ctx, id)
	if err != nil {
		return nil, err
	}
	var out [][]engine.Outcome
	for i := range sets {
		rows, err := session.LoadMatches(s.db.WithContext(ctx), sets[i].ID)
		if err != nil {
			return nil, err
		}
		outcomes, err := session.Outcomes(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, outcomes...)
	}
	return out, nil
}

func toSummary(l *model.League, sessionCount int64) (*Summary, error) {
	players, err := l.Players()
	if err != nil {
		return nil, err
	}
	return &Summary{
		ID:           l.ID,
		Title:        l.Title,
		Players:      players,
		Rule:         Rule{Type: l.RuleType, Count: l.RuleCount, Start: l.RuleStart, End: l.RuleEnd},
		Status:       l.Status,
		SessionCount: sessionCount,
		CreatedAt:    l.CreatedAt,
	}, nil
}

func allKnown(players []string, known map[string]struct{}) bool {
	for _, p := range players {
		if _, ok := known[p]; !ok {
			return false
		}
	}
	return true
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
