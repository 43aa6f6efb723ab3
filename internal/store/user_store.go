package store

import (
	"context"

	"smartbank/internal/models"
)

// EmailConstraint is the unique index guarding users.email.
const EmailConstraint = "users_email_key"

const userColumns = `id, email, password_hash, first_name, last_name, phone, address,
	to_char(date_of_birth, 'YYYY-MM-DD') AS date_of_birth, id_type, id_number, kyc_status, document_url, kyc_rejection_reason, created_at, updated_at`

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, address, date_of_birth, id_type, id_number, kyc_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone,
		user.Address, user.DateOfBirth, user.IDType, user.IDNumber, user.KycStatus,
	)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return models.User{}, err
	}
	return row, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if err != nil {
		return models.User{}, err
	}
	return row, nil
}

// List returns customers, excluding admin principals, newest first.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows := []models.User{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+userColumns+`
		FROM users
		WHERE id NOT IN (SELECT user_id FROM admins)
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *UserStore) CountCustomers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM users WHERE id NOT IN (SELECT user_id FROM admins)`)
	return count, err
}

// SubmitKycDocument records a document reference and puts the user back in
// the review queue.
func (s *UserStore) SubmitKycDocument(ctx context.Context, tx Execer, userID, documentURL string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET document_url = $1, kyc_status = $2, kyc_rejection_reason = NULL, updated_at = NOW()
		WHERE id = $3
	`, documentURL, models.KycStatusPending, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *UserStore) SetKycStatus(ctx context.Context, tx Execer, userID, status string, reason *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET kyc_status = $1, kyc_rejection_reason = $2, updated_at = NOW()
		WHERE id = $3
	`, status, reason, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ListPendingKyc returns users awaiting review, oldest submission first.
func (s *UserStore) ListPendingKyc(ctx context.Context) ([]models.User, error) {
	rows := []models.User{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+userColumns+`
		FROM users
		WHERE kyc_status = $1 AND document_url IS NOT NULL
		ORDER BY created_at ASC
	`, models.KycStatusPending)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
