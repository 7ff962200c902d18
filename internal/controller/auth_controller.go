package controller

import (
	"net/http"

	"reaction_timer_backend/internal/middleware"
	"reaction_timer_backend/internal/service"
	"reaction_timer_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
	IsRelease   bool
	CookieTTL   int
}

func NewAuthController(authService *service.AuthService, isRelease bool, cookieTTLSeconds int) *AuthController {
	return &AuthController{
		AuthService: authService,
		IsRelease:   isRelease,
		CookieTTL:   cookieTTLSeconds,
	}
}

// CredentialsRequest is the body of register and login.
// swagger:model CredentialsRequest
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register godoc
// @Summary Register a new player
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body CredentialsRequest true "credentials"
// @Success 201 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "username taken"
// @Router /api/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req CredentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(ctx.Request.Context(), req.Username, req.Password, util.ClientKey(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"id": user.ID, "username": user.Username})
}

// Login godoc
// @Summary Log in
// @Description Returns a bearer token and also sets it as an HttpOnly cookie.
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body CredentialsRequest true "credentials"
// @Success 200 {object} util.Response{data=object}
// @Failure 401 {object} util.Response
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req CredentialsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	token, user, err := c.AuthService.Login(ctx.Request.Context(), req.Username, req.Password, util.ClientKey(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.TokenCookie, token, c.CookieTTL, "/", "", c.IsRelease, true)
	util.Success(ctx, gin.H{
		"token":    token,
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// Logout godoc
// @Summary Log out
// @Tags auth
// @Produce  json
// @Success 200 {object} util.Response
// @Router /api/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.TokenCookie, "", -1, "/", "", c.IsRelease, true)
	util.Success(ctx, nil)
}

// Me godoc
// @Summary Current identity
// @Tags auth
// @Produce  json
// @Success 200 {object} util.Response{data=object}
// @Router /api/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	userID := currentUserID(ctx)
	if userID == nil {
		util.Success(ctx, gin.H{"logged_in": false})
		return
	}

	user, err := c.AuthService.CurrentUser(ctx.Request.Context(), *userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"logged_in":  true,
		"user_id":    user.ID,
		"username":   user.Username,
		"last_login": user.LastLogin,
	})
}
