package handler

import (
	"time"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

type createSessionRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	Force   bool   `json:"force"`
}

type createSessionResponse struct {
	Success bool            `json:"success"`
	Session *domain.Session `json:"session"`
}

type conflictDetails struct {
	LastLoginAt time.Time `json:"last_login_at"`
}

type conflictResponse struct {
	Error   string          `json:"error"`
	Details conflictDetails `json:"details"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type heartbeatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type forceLogoutResponse struct {
	UserID            string    `json:"user_id"`
	LastForceLogoutAt time.Time `json:"last_force_logout_at"`
}
