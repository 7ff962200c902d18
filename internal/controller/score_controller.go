package controller

import (
	"strconv"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/service"
	"reaction_timer_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ScoreController struct {
	RankingService *service.RankingService
	Hub            *service.LeaderboardHub
}

func NewScoreController(rankingService *service.RankingService, hub *service.LeaderboardHub) *ScoreController {
	return &ScoreController{RankingService: rankingService, Hub: hub}
}

func modeFromQuery(ctx *gin.Context) (model.GameMode, bool) {
	mode, ok := model.ParseGameMode(ctx.Query("mode"))
	if !ok {
		util.BadRequest(ctx, util.ErrInvalidMode.Error())
	}
	return mode, ok
}

// Fastest godoc
// @Summary Fastest completed runs
// @Tags scores
// @Produce  json
// @Param mode query string false "class or multiple" default(class)
// @Success 200 {object} util.Response{data=object}
// @Router /api/fastest [get]
func (c *ScoreController) Fastest(ctx *gin.Context) {
	mode, ok := modeFromQuery(ctx)
	if !ok {
		return
	}

	global, err := c.RankingService.GlobalFastest(ctx.Request.Context(), mode)
	if err != nil {
		respondError(ctx, err)
		return
	}
	data := gin.H{
		"mode":              mode,
		"global_fastest":    global.Fastest,
		"global_attempts":   global.Runs,
		"personal_fastest":  nil,
		"personal_attempts": 0,
	}

	if userID := currentUserID(ctx); userID != nil {
		personal, err := c.RankingService.PersonalFastest(ctx.Request.Context(), mode, *userID)
		if err != nil {
			respondError(ctx, err)
			return
		}
		data["personal_fastest"] = personal.Fastest
		data["personal_attempts"] = personal.Runs
	}
	util.Success(ctx, data)
}

// Leaderboard godoc
// @Summary Dense-ranked leaderboard
// @Tags scores
// @Produce  json
// @Param mode query string false "class or multiple" default(class)
// @Success 200 {object} util.Response{data=object}
// @Router /api/leaderboard [get]
func (c *ScoreController) Leaderboard(ctx *gin.Context) {
	mode, ok := modeFromQuery(ctx)
	if !ok {
		return
	}

	snap, err := c.RankingService.Snapshot(ctx.Request.Context(), mode, currentUserID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"mode":             mode,
		"leaderboard":      snap.Leaderboard,
		"personal_ranking": snap.PersonalRank,
	})
}

// History godoc
// @Summary Recent completed runs of the caller
// @Tags scores
// @Produce  json
// @Security BearerAuth
// @Param mode query string false "class or multiple" default(class)
// @Param limit query int false "5 to 10" default(10)
// @Success 200 {object} util.Response{data=object}
// @Failure 401 {object} util.Response
// @Router /api/history [get]
func (c *ScoreController) History(ctx *gin.Context) {
	mode, ok := modeFromQuery(ctx)
	if !ok {
		return
	}
	userID := currentUserID(ctx)
	if userID == nil {
		util.Unauthorized(ctx)
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			util.BadRequest(ctx, "limit must be an integer")
			return
		}
		limit = n
	}

	runs, err := c.RankingService.History(ctx.Request.Context(), *userID, mode, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"mode": mode, "history": runs})
}

// LeaderboardWs godoc
// @Summary Live leaderboard feed
// @Description Upgrades to a websocket that receives a LEADERBOARD message on connect and after every completed run.
// @Tags scores
// @Param mode query string false "class or multiple" default(class)
// @Router /api/leaderboard/ws [get]
func (c *ScoreController) LeaderboardWs(ctx *gin.Context) {
	mode, ok := modeFromQuery(ctx)
	if !ok {
		return
	}
	c.Hub.ServeWs(ctx.Writer, ctx.Request, mode)
}
