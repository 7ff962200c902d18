package controller

import (
	"errors"
	"net/http"
	"strconv"

	"reaction_timer_backend/internal/service"
	"reaction_timer_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP statuses. Anything unexpected is
// logged and answered with a generic 500.
func respondError(ctx *gin.Context, err error) {
	var limited *util.RateLimitedError
	if errors.As(err, &limited) {
		retryMs := limited.RetryAfterMs()
		ctx.Header("Retry-After", strconv.FormatInt((retryMs+999)/1000, 10))
		util.ErrorWithData(ctx, http.StatusTooManyRequests, "Too many requests, slow down.", gin.H{
			"retry_after_ms": retryMs,
		})
		return
	}

	switch {
	case errors.Is(err, util.ErrOwnershipMismatch):
		util.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, util.ErrUnknownSession),
		errors.Is(err, util.ErrAlreadyFinalized),
		errors.Is(err, util.ErrSessionExpired),
		errors.Is(err, util.ErrPrematureClick),
		errors.Is(err, util.ErrOutOfBounds),
		errors.Is(err, util.ErrInvalidRunSpec),
		errors.Is(err, util.ErrInvalidMode),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidPassword):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrAuthenticationRequired),
		errors.Is(err, util.ErrInvalidCredentials):
		util.Error(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, util.ErrUsernameTaken):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, util.ErrUserNotFound):
		util.NotFound(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

// currentUserID returns the authenticated caller, or nil for anonymous
// requests.
func currentUserID(ctx *gin.Context) *uint {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}
