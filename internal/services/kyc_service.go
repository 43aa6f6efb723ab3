package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"smartbank/internal/db"
	"smartbank/internal/models"
	"smartbank/internal/store"
)

type KycStore interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
	SubmitKycDocument(ctx context.Context, tx store.Execer, userID, documentURL string) error
	SetKycStatus(ctx context.Context, tx store.Execer, userID, status string, reason *string) error
	ListPendingKyc(ctx context.Context) ([]models.User, error)
}

type KycService struct {
	txRunner db.TxRunner
	users    KycStore
	audit    AuditStore
	log      *zap.Logger
}

func NewKycService(txRunner db.TxRunner, users KycStore, audit AuditStore, log *zap.Logger) *KycService {
	if log == nil {
		log = zap.NewNop()
	}
	return &KycService{txRunner: txRunner, users: users, audit: audit, log: log}
}

// Submit stores a document reference and queues the user for review.
func (s *KycService) Submit(ctx context.Context, userID, documentURL string) (models.User, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.SubmitKycDocument(ctx, tx, userID, documentURL); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("submit kyc document: %w", err)
		}
		return s.audit.Log(ctx, tx, userID, store.AuditKycSubmit, "user", userID, map[string]string{
			"document_url": documentURL,
		})
	})
	if err != nil {
		return models.User{}, err
	}
	return s.Status(ctx, userID)
}

func (s *KycService) Status(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *KycService) Pending(ctx context.Context) ([]models.User, error) {
	return s.users.ListPendingKyc(ctx)
}

// Review verifies or rejects a user's submission. A rejection needs a reason.
func (s *KycService) Review(ctx context.Context, reviewerID, userID, decision, reason string) (models.User, error) {
	reason = strings.TrimSpace(reason)
	var rejection *string
	switch decision {
	case models.KycStatusVerified:
	case models.KycStatusRejected:
		if reason == "" {
			return models.User{}, ErrRejectionReason
		}
		rejection = &reason
	default:
		return models.User{}, ErrInvalidKycDecision
	}
	user, err := s.Status(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user.DocumentURL == nil {
		return models.User{}, ErrNoKycDocument
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.SetKycStatus(ctx, tx, userID, decision, rejection); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("set kyc status: %w", err)
		}
		return s.audit.Log(ctx, tx, reviewerID, store.AuditKycReview, "user", userID, map[string]string{
			"decision": decision,
			"reason":   reason,
		})
	})
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("kyc reviewed", zap.String("user_id", userID), zap.String("decision", decision))
	user.KycStatus = decision
	user.KycRejectionReason = rejection
	return user, nil
}
