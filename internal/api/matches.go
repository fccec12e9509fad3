package api

import (
	"net/http"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/service/game"
	"jonglog-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type scoreBody struct {
	Name     string   `json:"name" binding:"required"`
	Score    *float64 `json:"score" binding:"required"`
	SeatWind string   `json:"seatWind"`
}

type matchBody struct {
	Mode   string      `json:"mode"`
	Scores []scoreBody `json:"scores" binding:"required,len=4,dive"`
}

type selectBody struct {
	Index *int `json:"index" binding:"required,min=0"`
}

func (h *Handler) SubmitMatch(c *gin.Context) {
	h.submit(c, 0)
}

func (h *Handler) UpdateMatch(c *gin.Context) {
	matchID, ok := parseIDParam(c, "matchId")
	if !ok {
		return
	}
	h.submit(c, matchID)
}

func (h *Handler) submit(c *gin.Context, matchID int64) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body matchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := game.ParseMode(body.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	inputs, err := toInputs(body.Scores)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.services.Games.Submit(c.Request.Context(), id, game.SubmitParams{
		MatchID: matchID,
		Mode:    mode,
		Scores:  inputs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeSubmitResult(c, result, matchID == 0)
}

func writeSubmitResult(c *gin.Context, result *game.SubmitResult, created bool) {
	switch {
	case result.NeedsTieBreak():
		response.Accepted(c, result.TieBreak, "tie-break required")
	case created:
		response.Created(c, result.Match)
	default:
		response.Success(c, result.Match)
	}
}

func (h *Handler) RemoveMatch(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	matchID, ok := parseIDParam(c, "matchId")
	if !ok {
		return
	}
	if err := h.services.Games.RemoveMatch(c.Request.Context(), id, matchID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *Handler) GetTieBreak(c *gin.Context) {
	view, err := h.services.Games.GetTie(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) SelectTieBreak(c *gin.Context) {
	var body selectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	token := c.Param("token")
	pending, err := h.services.Games.GetTie(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.services.Games.SelectTie(c.Request.Context(), token, *body.Index)
	if err != nil {
		writeError(c, err)
		return
	}
	writeSubmitResult(c, result, pending.MatchID == 0)
}

func (h *Handler) ResetTieBreak(c *gin.Context) {
	view, err := h.services.Games.ResetTie(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) CancelTieBreak(c *gin.Context) {
	if err := h.services.Games.CancelTie(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func toInputs(scores []scoreBody) ([]engine.Input, error) {
	out := make([]engine.Input, len(scores))
	for i, s := range scores {
		wind, err := engine.ParseSeatWind(s.SeatWind)
		if err != nil {
			return nil, err
		}
		out[i] = engine.Input{Name: s.Name, Score: *s.Score, SeatWind: wind}
	}
	return out, nil
}
