package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"jonglog-service/internal/service/league"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type leagueRuleBody struct {
	Type  string `json:"type" binding:"required,oneof=count period"`
	Count int    `json:"count"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type createLeagueBody struct {
	Title   string         `json:"title" binding:"required"`
	Players []string       `json:"players" binding:"required,min=4"`
	Rule    leagueRuleBody `json:"rule" binding:"required"`
}

func (b createLeagueBody) toParams() (league.CreateParams, error) {
	rule := league.Rule{Type: b.Rule.Type, Count: b.Rule.Count}
	var err error
	if rule.Start, err = parseLeagueDate(b.Rule.Start); err != nil {
		return league.CreateParams{}, err
	}
	if rule.End, err = parseLeagueDate(b.Rule.End); err != nil {
		return league.CreateParams{}, err
	}
	return league.CreateParams{Title: b.Title, Players: b.Players, Rule: rule}, nil
}

func parseLeagueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", appErr.ErrInvalidLeague, s)
	}
	return &t, nil
}

func (h *Handler) ListLeagues(c *gin.Context) {
	leagues, err := h.services.Leagues.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"items": leagues})
}

func (h *Handler) CreateLeague(c *gin.Context) {
	var body createLeagueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	params, err := body.toParams()
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.services.Leagues.Create(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, result)
}

func (h *Handler) GetLeague(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.services.Leagues.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *Handler) CompleteLeague(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	summary, err := h.services.Leagues.Complete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) DeleteLeague(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Leagues.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *Handler) UnlinkLeagueSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "sessionId")
	if !ok {
		return
	}
	if err := h.services.Leagues.UnlinkSession(c.Request.Context(), id, sessionID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *Handler) LeagueStandings(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	standings, err := h.services.Leagues.Standings(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"items": standings})
}

func (h *Handler) LeagueChart(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	png, err := h.services.Leagues.Chart(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
