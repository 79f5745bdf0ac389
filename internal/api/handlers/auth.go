package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/api/middleware"
	"github.com/snaplate/backend/internal/auth"
	"github.com/snaplate/backend/internal/db"
	"github.com/snaplate/backend/internal/logging"
)

type AuthHandler struct {
	db     *db.Database
	jwt    *auth.JWTService
	logger *zap.SugaredLogger
}

func NewAuthHandler(db *db.Database, jwt *auth.JWTService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, logger: logging.OrNop(logger)}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !auth.CheckPassword(req.Password, user.Password) {
		h.logger.Warnw("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.jwt.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		h.logger.Errorw("generate token", "username", user.Username, "error", err)
		jsonError(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, loginResponse{
		Token: token,
		User:  userResponse{ID: user.ID, Username: user.Username, Role: user.Role},
	}, http.StatusOK)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.db.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}

	jsonResponse(w, userResponse{ID: user.ID, Username: user.Username, Role: user.Role}, http.StatusOK)
}
