package api

import (
	"errors"
	"net/http"

	"busticket/internal/domain"
	"busticket/internal/models"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type createAdminRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=admin superadmin"`
}

type adminView struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  models.AdminRole `json:"role"`
}

func viewOf(a *models.Admin) adminView {
	return adminView{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

func (s *HTTPServer) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return
	}
	admin, token, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, domain.ErrUnauthorized) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "Invalid credentials"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Login successful", gin.H{
		"admin": viewOf(admin),
		"token": token,
	})
}

func (s *HTTPServer) handleProfile(c *gin.Context) {
	admin := currentAdmin(c)
	if admin == nil {
		s.fail(c, domain.ErrUnauthorized)
		return
	}
	respond(c, http.StatusOK, "", admin)
}

func (s *HTTPServer) handleCreateAdmin(c *gin.Context) {
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return
	}
	admin, err := s.auth.CreateAdmin(c.Request.Context(), service.CreateAdminInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.AdminRole(req.Role),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Admin created successfully", viewOf(admin))
}
