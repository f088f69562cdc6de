package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset, unreadOnly)
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *mockNotificationRepo) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockNotificationRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockNotificationRepo) GetPreference(ctx context.Context, userID uuid.UUID, event string) (*models.NotificationPreference, error) {
	args := m.Called(ctx, userID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

func (m *mockNotificationRepo) ListPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.NotificationPreference), args.Error(1)
}

func (m *mockNotificationRepo) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	return m.Called(ctx, pref).Error(0)
}

type mockRealtime struct {
	mock.Mock
}

func (m *mockRealtime) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	return m.Called(userID, event, data).Error(0)
}

func TestNotificationService_Dispatch_PersistsByDefault(t *testing.T) {
	ctx := context.Background()
	repo := new(mockNotificationRepo)
	rt := new(mockRealtime)
	svc := NewNotificationService(repo, rt)
	userID := uuid.New()
	data := map[string]any{"order_id": "o1"}

	rt.On("BroadcastToUser", userID, EventOrderUpdated, data).Return(nil)
	repo.On("GetPreference", ctx, userID, EventOrderUpdated).Return(nil, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == userID && n.Event == EventOrderUpdated && len(n.Payload) > 0
	})).Return(nil)

	require.NoError(t, svc.dispatch(ctx, userID, EventOrderUpdated, data))
	repo.AssertExpectations(t)
	rt.AssertExpectations(t)
}

func TestNotificationService_Dispatch_RespectsDisabledFeed(t *testing.T) {
	ctx := context.Background()
	repo := new(mockNotificationRepo)
	rt := new(mockRealtime)
	svc := NewNotificationService(repo, rt)
	userID := uuid.New()

	rt.On("BroadcastToUser", userID, EventTimesheetUpdated, mock.Anything).Return(nil)
	repo.On("GetPreference", ctx, userID, EventTimesheetUpdated).
		Return(&models.NotificationPreference{UserID: userID, Event: EventTimesheetUpdated, InApp: false}, nil)

	require.NoError(t, svc.dispatch(ctx, userID, EventTimesheetUpdated, nil))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestNotificationService_Notify_IsAsyncAndSkipsNilUsers(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := NewNotificationService(repo, nil)
	userID := uuid.New()

	repo.On("GetPreference", mock.Anything, userID, EventDisputeOpened).Return(nil, nil)
	done := make(chan struct{})
	repo.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(done) }).
		Return(errors.New("db down"))

	svc.Notify(context.Background(), EventDisputeOpened, nil, uuid.Nil, userID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("уведомление не сохранено")
	}
	repo.AssertNumberOfCalls(t, "GetPreference", 1)
}

func TestNotificationService_GetPreferences_FillsDefaults(t *testing.T) {
	ctx := context.Background()
	repo := new(mockNotificationRepo)
	svc := NewNotificationService(repo, nil)
	userID := uuid.New()

	repo.On("ListPreferences", ctx, userID).Return([]models.NotificationPreference{
		{UserID: userID, Event: EventOrderCreated, InApp: false, Email: true},
	}, nil)

	prefs, err := svc.GetPreferences(ctx, userID)
	require.NoError(t, err)
	require.Len(t, prefs, len(notificationEvents))
	assert.False(t, prefs[0].InApp)
	assert.True(t, prefs[0].Email)
	assert.True(t, prefs[1].InApp)
	assert.False(t, prefs[1].Email)
}

func TestNotificationService_UpdatePreference_UnknownEvent(t *testing.T) {
	svc := NewNotificationService(new(mockNotificationRepo), nil)

	_, err := svc.UpdatePreference(context.Background(), uuid.New(), "order.exploded", true, false)
	assert.True(t, apperror.IsValidation(err))
}

func TestNotificationService_MarkAsRead_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(mockNotificationRepo)
	svc := NewNotificationService(repo, nil)
	id, userID := uuid.New(), uuid.New()

	repo.On("MarkAsRead", ctx, id, userID).Return(repository.ErrNotificationNotFound)

	err := svc.MarkAsRead(ctx, id, userID)
	assert.True(t, apperror.IsNotFound(err))
}
