package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/facegate/internal/models"
	"github.com/iudanet/facegate/internal/server/storage"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	return NewFromDB(db), mock
}

func TestCreateAccount_DBError(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(errors.New("disk I/O error"))

	err := s.CreateAccount(context.Background(), &models.Account{
		ID:        "id",
		Email:     "a@x.io",
		CreatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrAccountAlreadyExists)
	assert.Contains(t, err.Error(), "failed to insert account")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_UniqueViolation(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: accounts.email (2067)"))

	err := s.CreateAccount(context.Background(), &models.Account{ID: "id", Email: "a@x.io"})
	assert.ErrorIs(t, err, storage.ErrAccountAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFace_RaceLostReportsAlreadyEnrolled(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WithArgs("ct", "iv", sqlmock.AnyArg(), "a@x.io").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM accounts WHERE email = ?")).
		WithArgs("a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err := s.SetFace(context.Background(), "a@x.io", models.EncryptedFace{Ciphertext: "ct", IV: "iv"})
	assert.ErrorIs(t, err, storage.ErrFaceAlreadyEnrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEnrolledFaces_QueryError(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, face_ciphertext, face_iv")).
		WillReturnError(errors.New("database is locked"))

	faces, err := s.ListEnrolledFaces(context.Background())
	require.Error(t, err)
	assert.Nil(t, faces)
	assert.Contains(t, err.Error(), "failed to list enrolled faces")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEnrolledFaces_RowError(t *testing.T) {
	s, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{"id", "email", "face_ciphertext", "face_iv"}).
		AddRow("id-1", "a@x.io", "ct", "iv").
		RowError(0, errors.New("row corrupted"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, face_ciphertext, face_iv")).
		WillReturnRows(rows)

	_, err := s.ListEnrolledFaces(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing_Error(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = NewFromDB(db).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.NoError(t, mock.ExpectationsWereMet())
}
