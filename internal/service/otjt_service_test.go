package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/storage"
)

type mockOTJTRepo struct {
	mock.Mock
}

func (m *mockOTJTRepo) GetEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Enrollment), args.Error(1)
}

func (m *mockOTJTRepo) GetLog(ctx context.Context, id uuid.UUID) (*models.OTJTLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTJTLog), args.Error(1)
}

func (m *mockOTJTRepo) ListLogs(ctx context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.OTJTLog, error) {
	args := m.Called(ctx, enrollmentID, limit, offset)
	return args.Get(0).([]models.OTJTLog), args.Error(1)
}

func (m *mockOTJTRepo) CreateLog(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error {
	return m.Called(ctx, log, maxPerDay).Error(0)
}

func (m *mockOTJTRepo) SetEvidence(ctx context.Context, logID uuid.UUID, path string) error {
	return m.Called(ctx, logID, path).Error(0)
}

func (m *mockOTJTRepo) Review(ctx context.Context, logID, reviewerID uuid.UUID, status string, comment *string) (*models.OTJTLog, error) {
	args := m.Called(ctx, logID, reviewerID, status, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTJTLog), args.Error(1)
}

func (m *mockOTJTRepo) Resubmit(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error {
	return m.Called(ctx, log, maxPerDay).Error(0)
}

func (m *mockOTJTRepo) Summary(ctx context.Context, enrollmentID uuid.UUID) (*models.OTJTSummary, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTJTSummary), args.Error(1)
}

type mockEvidenceStore struct {
	mock.Mock
}

func (m *mockEvidenceStore) Save(ctx context.Context, ownerID uuid.UUID, r io.Reader) (*storage.StoredFile, error) {
	args := m.Called(ctx, ownerID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.StoredFile), args.Error(1)
}

func (m *mockEvidenceStore) Delete(ctx context.Context, relativePath string) error {
	return m.Called(ctx, relativePath).Error(0)
}

var otjtNow = time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

func newOTJTFixture() (*OTJTService, *mockOTJTRepo, *mockEvidenceStore, *models.Enrollment) {
	repo := new(mockOTJTRepo)
	files := new(mockEvidenceStore)
	svc := NewOTJTService(repo, files, nil)
	svc.now = func() time.Time { return otjtNow }
	mentor := uuid.New()
	enrollment := &models.Enrollment{
		ID:                uuid.New(),
		ApprenticeID:      uuid.New(),
		MentorID:          &mentor,
		Status:            models.EnrollmentStatusActive,
		RequiredOTJTHours: 400,
		StartDate:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	repo.On("GetEnrollment", mock.Anything, enrollment.ID).Return(enrollment, nil)
	return svc, repo, files, enrollment
}

func TestOTJTService_LogOTJTTime(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()

	repo.On("CreateLog", ctx, mock.MatchedBy(func(l *models.OTJTLog) bool {
		return l.Hours == 4 && l.Status == "pending" && l.LogDate.Equal(mustDate("2026-03-10"))
	}), models.MaxOTJTHoursPerDay).Return(nil)

	log, err := svc.LogOTJTTime(ctx, LogOTJTInput{
		EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-10", Hours: 4, ActivityType: "workshop",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", log.Status)
}

func TestOTJTService_LogOTJTTime_DailyLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()
	repo.On("CreateLog", ctx, mock.Anything, models.MaxOTJTHoursPerDay).Return(repository.ErrDailyLimitExceeded)

	_, err := svc.LogOTJTTime(ctx, LogOTJTInput{
		EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-10", Hours: 5, ActivityType: "e-learning",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestOTJTService_LogOTJTTime_Guards(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		input func(e *models.Enrollment) LogOTJTInput
		check func(error) bool
	}{
		{"future date", func(e *models.Enrollment) LogOTJTInput {
			return LogOTJTInput{EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-12", Hours: 2, ActivityType: "lecture"}
		}, apperror.IsValidation},
		{"zero hours", func(e *models.Enrollment) LogOTJTInput {
			return LogOTJTInput{EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-10", Hours: 0, ActivityType: "lecture"}
		}, apperror.IsValidation},
		{"more than a day", func(e *models.Enrollment) LogOTJTInput {
			return LogOTJTInput{EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-10", Hours: 8.5, ActivityType: "lecture"}
		}, apperror.IsValidation},
		{"not the apprentice", func(e *models.Enrollment) LogOTJTInput {
			return LogOTJTInput{EnrollmentID: e.ID, UserID: *e.MentorID, Date: "2026-03-10", Hours: 2, ActivityType: "lecture"}
		}, apperror.IsForbidden},
		{"before start", func(e *models.Enrollment) LogOTJTInput {
			return LogOTJTInput{EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2025-12-30", Hours: 2, ActivityType: "lecture"}
		}, apperror.IsValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, e := newOTJTFixture()
			_, err := svc.LogOTJTTime(ctx, tc.input(e))
			assert.True(t, tc.check(err), "got %v", err)
			repo.AssertNotCalled(t, "CreateLog", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("paused enrollment", func(t *testing.T) {
		svc, repo, _, e := newOTJTFixture()
		e.Status = models.EnrollmentStatusPaused
		_, err := svc.LogOTJTTime(ctx, LogOTJTInput{EnrollmentID: e.ID, UserID: e.ApprenticeID, Date: "2026-03-10", Hours: 2, ActivityType: "lecture"})
		assert.True(t, apperror.IsValidation(err))
		repo.AssertNotCalled(t, "CreateLog", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOTJTService_AttachEvidence(t *testing.T) {
	ctx := context.Background()
	svc, repo, files, e := newOTJTFixture()
	log := &models.OTJTLog{ID: uuid.New(), EnrollmentID: e.ID, Status: "pending"}
	repo.On("GetLog", ctx, log.ID).Return(log, nil)
	body := bytes.NewReader([]byte("%PDF-1.4"))

	files.On("Save", ctx, e.ApprenticeID, body).Return(&storage.StoredFile{Path: "a/b.pdf", MIME: "application/pdf"}, nil)
	repo.On("SetEvidence", ctx, log.ID, "a/b.pdf").Return(nil)

	out, err := svc.AttachEvidence(ctx, log.ID, e.ApprenticeID, body)
	require.NoError(t, err)
	assert.Equal(t, "a/b.pdf", *out.EvidencePath)
}

func TestOTJTService_AttachEvidence_RejectsUnsupportedType(t *testing.T) {
	ctx := context.Background()
	svc, repo, files, e := newOTJTFixture()
	log := &models.OTJTLog{ID: uuid.New(), EnrollmentID: e.ID, Status: "pending"}
	repo.On("GetLog", ctx, log.ID).Return(log, nil)
	files.On("Save", ctx, e.ApprenticeID, mock.Anything).Return(nil, storage.ErrUnsupportedType)

	_, err := svc.AttachEvidence(ctx, log.ID, e.ApprenticeID, bytes.NewReader([]byte("GIF89a")))
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "SetEvidence", mock.Anything, mock.Anything, mock.Anything)
}

func TestOTJTService_ReviewOTJTLog(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()
	log := &models.OTJTLog{ID: uuid.New(), EnrollmentID: e.ID, Status: "pending", Hours: 3}
	repo.On("GetLog", ctx, log.ID).Return(log, nil)

	_, err := svc.ReviewOTJTLog(ctx, ReviewInput{LogID: log.ID, MentorID: e.ApprenticeID, Decision: "approved"})
	assert.True(t, apperror.IsForbidden(err))

	_, err = svc.ReviewOTJTLog(ctx, ReviewInput{LogID: log.ID, MentorID: *e.MentorID, Decision: "queried"})
	assert.True(t, apperror.IsValidation(err), "уточнение без комментария")

	approved := *log
	approved.Status = "approved"
	repo.On("Review", ctx, log.ID, *e.MentorID, "approved", (*string)(nil)).Return(&approved, nil)
	out, err := svc.ReviewOTJTLog(ctx, ReviewInput{LogID: log.ID, MentorID: *e.MentorID, Decision: "approved"})
	require.NoError(t, err)
	assert.Equal(t, "approved", out.Status)
}

func TestOTJTService_ReviewOTJTLog_OnlyPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()
	log := &models.OTJTLog{ID: uuid.New(), EnrollmentID: e.ID, Status: "approved"}
	repo.On("GetLog", ctx, log.ID).Return(log, nil)

	_, err := svc.ReviewOTJTLog(ctx, ReviewInput{LogID: log.ID, MentorID: *e.MentorID, Decision: "rejected"})
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "Review", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTJTService_ResubmitOTJTLog(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()
	log := &models.OTJTLog{ID: uuid.New(), EnrollmentID: e.ID, Status: "queried", Hours: 6}
	repo.On("GetLog", ctx, log.ID).Return(log, nil)
	repo.On("Resubmit", ctx, mock.MatchedBy(func(l *models.OTJTLog) bool { return l.Hours == 3.5 }), models.MaxOTJTHoursPerDay).
		Run(func(args mock.Arguments) { args.Get(1).(*models.OTJTLog).Status = "pending" }).
		Return(nil)

	hours := 3.5
	out, err := svc.ResubmitOTJTLog(ctx, ResubmitInput{LogID: log.ID, UserID: e.ApprenticeID, Hours: &hours})
	require.NoError(t, err)
	assert.Equal(t, "pending", out.Status)
}

func TestOTJTService_GetOTJTSummary(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, e := newOTJTFixture()
	repo.On("Summary", ctx, e.ID).Return(&models.OTJTSummary{EnrollmentID: e.ID, RequiredHours: 400, ApprovedHours: 100, PendingHours: 6}, nil)

	summary, err := svc.GetOTJTSummary(ctx, e.ID, *e.MentorID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, summary.RemainingHours)
	assert.Equal(t, 25.0, summary.PercentDone)

	_, err = svc.GetOTJTSummary(ctx, e.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}
