package api

import (
	"net/http"

	"jonglog-service/internal/engine"
	"jonglog-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type playerBody struct {
	Name string `json:"name" binding:"required"`
}

type rulesBody struct {
	StartScore  int    `json:"startScore" binding:"required,min=1"`
	ReturnScore int    `json:"returnScore" binding:"required,min=1"`
	Uma         []int  `json:"uma" binding:"required,len=4"`
	TieBreaker  string `json:"tieBreaker" binding:"omitempty,oneof=priority split"`
}

func (b rulesBody) toRules() engine.Rules {
	return engine.Rules{
		StartScore:  b.StartScore,
		ReturnScore: b.ReturnScore,
		Uma:         b.Uma,
		TieBreaker:  engine.TieBreaker(b.TieBreaker),
	}
}

func (h *Handler) ListPlayers(c *gin.Context) {
	players, err := h.services.Players.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	response.Success(c, gin.H{"players": names})
}

func (h *Handler) AddPlayer(c *gin.Context) {
	var body playerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.services.Players.Add(c.Request.Context(), body.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, gin.H{"name": p.Name})
}

func (h *Handler) RemovePlayer(c *gin.Context) {
	if err := h.services.Players.Remove(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *Handler) PlayerStats(c *gin.Context) {
	stats, err := h.services.Players.Stats(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *Handler) GetRules(c *gin.Context) {
	rules, err := h.services.Settings.GetRules(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rules)
}

func (h *Handler) SaveRules(c *gin.Context) {
	var body rulesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	rules, err := h.services.Settings.SaveRules(c.Request.Context(), body.toRules())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rules)
}

func (h *Handler) ResetRules(c *gin.Context) {
	rules, err := h.services.Settings.ResetRules(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rules)
}
