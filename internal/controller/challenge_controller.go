package controller

import (
	"errors"
	"io"

	"reaction_timer_backend/internal/service"
	"reaction_timer_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ChallengeController struct {
	ChallengeService *service.ChallengeService
}

func NewChallengeController(challengeService *service.ChallengeService) *ChallengeController {
	return &ChallengeController{ChallengeService: challengeService}
}

// StartRequest selects the game mode. An empty body starts a single-attempt
// challenge.
// swagger:model StartRequest
type StartRequest struct {
	Mode string `json:"mode"`
}

// SubmitRequest is a click report. reaction_time is the client's own
// measurement and is only audited.
// swagger:model SubmitRequest
type SubmitRequest struct {
	SessionID    string   `json:"session_id" binding:"required"`
	ReactionTime *float64 `json:"reaction_time"`
	Mode         string   `json:"mode"`
	RunID        *string  `json:"run_id"`
	RunTotal     *int     `json:"run_total"`
}

// Start godoc
// @Summary Begin a challenge
// @Description Issues a session whose trigger fires after wait_ms.
// @Tags challenge
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body StartRequest false "mode"
// @Success 200 {object} util.Response{data=service.BeginResult}
// @Failure 400 {object} util.Response
// @Failure 429 {object} util.Response{data=object} "retry_after_ms"
// @Router /api/start [post]
func (c *ChallengeController) Start(ctx *gin.Context) {
	var req StartRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID := currentUserID(ctx)
	if userID == nil {
		util.Unauthorized(ctx)
		return
	}

	res, err := c.ChallengeService.BeginChallenge(ctx.Request.Context(), *userID, util.ClientKey(ctx), req.Mode)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// Submit godoc
// @Summary Submit a click
// @Description Validates the click against the server clock and records it.
// @Tags challenge
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body SubmitRequest true "click report"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 429 {object} util.Response{data=object} "retry_after_ms"
// @Router /api/submit [post]
func (c *ChallengeController) Submit(ctx *gin.Context) {
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID := currentUserID(ctx)
	if userID == nil {
		util.Unauthorized(ctx)
		return
	}

	res, err := c.ChallengeService.SubmitResult(ctx.Request.Context(), service.SubmitRequest{
		SessionID:        req.SessionID,
		UserID:           *userID,
		ClientKey:        util.ClientKey(ctx),
		ClientReactionMs: req.ReactionTime,
		Mode:             req.Mode,
		RunID:            req.RunID,
		RunTotal:         req.RunTotal,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
