package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"smartbank/internal/auth"
	"smartbank/internal/db"
	"smartbank/internal/models"
	"smartbank/internal/store"
)

var errEmailTaken = errors.New("email already registered")

type registerRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"required,strongpassword"`
	FirstName   string  `json:"first_name" validate:"required,max=100"`
	LastName    string  `json:"last_name" validate:"required,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,min=7,max=20"`
	Address     *string `json:"address" validate:"omitempty,max=255"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	IDType      *string `json:"id_type" validate:"omitempty,oneof=AADHAAR PAN PASSPORT DRIVING_LICENSE"`
	IDNumber    *string `json:"id_number" validate:"omitempty,max=50"`
}

// Register creates the user, their default SAVINGS account and, when no
// admin exists yet, makes them the super admin. All of it commits together.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondServiceError(w, r, err, "registration_failed")
		return
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		Address:      req.Address,
		DateOfBirth:  req.DateOfBirth,
		IDType:       req.IDType,
		IDNumber:     req.IDNumber,
		KycStatus:    models.KycStatusPending,
	}
	var account models.Account
	var bootstrapped bool
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if _, err := h.users.GetByEmail(r.Context(), email); err == nil {
			return errEmailTaken
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := h.users.Create(r.Context(), tx, user); err != nil {
			return err
		}
		var err error
		account, err = h.ledger.OpenDefaultAccount(r.Context(), tx, user.ID)
		if err != nil {
			return err
		}
		hasAdmin, err := h.admin.HasAnyAdmin(r.Context(), tx)
		if err != nil {
			return err
		}
		if !hasAdmin {
			if err := h.admin.CreateAdmin(r.Context(), tx, user.ID, true, nil); err != nil {
				return err
			}
			bootstrapped = true
		}
		return h.audit.Log(r.Context(), tx, user.ID, store.AuditRegister, "user", user.ID, map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
	})
	if errors.Is(err, errEmailTaken) || db.IsUniqueViolation(err, store.EmailConstraint) {
		respondError(w, http.StatusConflict, "email_taken", errEmailTaken.Error())
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "registration_failed")
		return
	}
	if bootstrapped {
		h.log.Info("first user promoted to super admin", zap.String("user_id", user.ID))
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		h.respondServiceError(w, r, err, "token_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":          token,
		"user_id":        user.ID,
		"email":          user.Email,
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"kyc_status":     user.KycStatus,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	user, err := h.users.GetByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "login_failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.audit.Log(r.Context(), tx, user.ID, store.AuditLogin, "user", user.ID, map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
	}); err != nil {
		h.respondServiceError(w, r, err, "login_failed")
		return
	}
	principal, err := h.admin.Lookup(r.Context(), user.ID)
	if err != nil {
		h.respondServiceError(w, r, err, "login_failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		h.respondServiceError(w, r, err, "token_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":         user.ID,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"kyc_status": user.KycStatus,
			"is_admin":   principal.IsAdmin,
		},
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "user_not_found", "user not found")
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_user")
		return
	}
	principal, err := h.admin.Lookup(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_user")
		return
	}
	roles := []string{}
	if principal.IsAdmin {
		if roles, err = h.admin.Roles(r.Context(), userID); err != nil {
			h.respondServiceError(w, r, err, "unable_to_load_user")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"is_admin": principal.IsAdmin,
		"is_super": principal.IsSuper,
		"roles":    roles,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
