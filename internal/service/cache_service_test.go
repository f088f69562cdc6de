package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
)

func TestMemoryCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(ctx, 0)

	require.NoError(t, cache.Set(ctx, "k", []string{"a", "b"}, time.Minute))
	var got []string
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, cache.Set(ctx, "old", 1, -time.Second))
	var n int
	found, err = cache.Get(ctx, "old", &n)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_InvalidateByPrefix(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(ctx, 0)
	provider, other := uuid.New(), uuid.New()

	require.NoError(t, cache.Set(ctx, CalendarCacheKey(provider, 0, "2030-05-01", "2030-05-31"), 1, time.Minute))
	require.NoError(t, cache.Set(ctx, CalendarCacheKey(other, 0, "2030-05-01", "2030-05-31"), 2, time.Minute))
	require.NoError(t, cache.InvalidateByPrefix(ctx, CalendarCachePrefix(provider)))

	var n int
	found, _ := cache.Get(ctx, CalendarCacheKey(provider, 0, "2030-05-01", "2030-05-31"), &n)
	assert.False(t, found)
	found, _ = cache.Get(ctx, CalendarCacheKey(other, 0, "2030-05-01", "2030-05-31"), &n)
	assert.True(t, found)
	assert.Equal(t, 2, n)
}

func TestAvailabilityService_GetAvailability_CachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	repo := new(mockAvailabilityRepo)
	svc := NewAvailabilityService(repo, nil).WithCache(NewMemoryCache(ctx, 0))
	provider := uuid.New()
	from, to := mustDate("2030-05-01"), mustDate("2030-05-31")

	repo.On("ListRange", ctx, provider, from, to).
		Return([]models.AvailabilitySlot{{ProviderID: provider, Date: from, Status: "blocked"}}, nil).Twice()

	for i := 0; i < 2; i++ {
		slots, err := svc.GetAvailability(ctx, provider, "2030-05-01", "2030-05-31")
		require.NoError(t, err)
		require.Len(t, slots, 1)
		assert.Equal(t, "blocked", slots[0].Status)
	}
	repo.AssertNumberOfCalls(t, "ListRange", 1)

	repo.On("SetStatus", ctx, provider, from, "available", models.SlotSourceManual, (*string)(nil)).
		Return(&models.AvailabilitySlot{ProviderID: provider, Date: from, Status: "available"}, nil)
	_, err := svc.SetAvailability(ctx, provider, "2030-05-01", "available", nil)
	require.NoError(t, err)

	_, err = svc.GetAvailability(ctx, provider, "2030-05-01", "2030-05-31")
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "ListRange", 2)
}

func TestMemoryCache_Incr(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(ctx, 0)
	provider := uuid.New()

	var gen int64
	found, err := cache.Get(ctx, CalendarGenerationKey(provider), &gen)
	require.NoError(t, err)
	assert.False(t, found)

	for want := int64(1); want <= 3; want++ {
		n, err := cache.Incr(ctx, CalendarGenerationKey(provider), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	require.NoError(t, cache.InvalidateByPrefix(ctx, CalendarCachePrefix(provider)))
	found, err = cache.Get(ctx, CalendarGenerationKey(provider), &gen)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 3, gen)
}

func TestAvailabilityService_GetAvailability_WriteDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := new(mockAvailabilityRepo)
	svc := NewAvailabilityService(repo, nil).WithCache(NewMemoryCache(ctx, 0))
	provider := uuid.New()
	from, to := mustDate("2030-05-01"), mustDate("2030-05-31")

	// Запись календаря завершается, пока первый читатель ещё держит старые
	// данные из базы и не успел положить их в кеш.
	repo.On("ListRange", ctx, provider, from, to).
		Run(func(mock.Arguments) { svc.invalidate(ctx, provider) }).
		Return([]models.AvailabilitySlot{{ProviderID: provider, Date: from, Status: "blocked"}}, nil).Once()
	repo.On("ListRange", ctx, provider, from, to).
		Return([]models.AvailabilitySlot{{ProviderID: provider, Date: from, Status: "available"}}, nil).Once()

	stale, err := svc.GetAvailability(ctx, provider, "2030-05-01", "2030-05-31")
	require.NoError(t, err)
	assert.Equal(t, "blocked", stale[0].Status)

	for i := 0; i < 2; i++ {
		fresh, err := svc.GetAvailability(ctx, provider, "2030-05-01", "2030-05-31")
		require.NoError(t, err)
		assert.Equal(t, "available", fresh[0].Status)
	}
	repo.AssertNumberOfCalls(t, "ListRange", 2)
}
