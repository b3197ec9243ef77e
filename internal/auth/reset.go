package auth

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/wisbric/hrctl/internal/db"
)

// ResetRequest is the JSON body for POST /auth/reset.
type ResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetHandler consumes the one-time reset_token issued when a tenant's
// admin identity is created during provisioning (or reissued manually) and
// sets a caller-chosen password.
type ResetHandler struct {
	db db.DBTX
}

func NewResetHandler(dbtx db.DBTX) *ResetHandler {
	return &ResetHandler{db: dbtx}
}

// HandleReset validates the token against the users table and, on match,
// hashes and stores the new password and clears the token so it cannot be
// replayed.
func (h *ResetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Token == "" || len(req.NewPassword) < 8 {
		respondErr(w, http.StatusBadRequest, "bad_request", "token and a password of at least 8 characters are required")
		return
	}

	var userID string
	err := h.db.QueryRow(r.Context(),
		`SELECT id FROM users WHERE reset_token = $1 AND is_active = true`, req.Token,
	).Scan(&userID)
	if err != nil {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid or expired reset token")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "internal", "failed to hash password")
		return
	}

	_, err = h.db.Exec(r.Context(),
		`UPDATE users SET password_hash = $1, reset_token = NULL WHERE id = $2`, string(hash), userID)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "internal", "failed to set password")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
