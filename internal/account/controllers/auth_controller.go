package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/services"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type AuthController struct {
	auth services.AuthService
}

func NewAuthController(auth services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	resp, err := ac.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Register handles POST /api/auth/register. New users always get the plain
// "user" role; admins are provisioned out of band.
func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.New("INVALID_REQUEST", http.StatusBadRequest, err.Error()))
		return
	}

	user, err := ac.auth.Register(req.Username, req.Password, []string{"user"})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}
