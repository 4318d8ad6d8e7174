package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwire/models"
	"tripwire/utils"
)

type fakeBounceStore struct {
	suppressed  map[string]bool
	softCounts  map[string]int
	records     map[string]*models.BounceRecord
	suppressErr error
}

func newFakeBounceStore() *fakeBounceStore {
	return &fakeBounceStore{
		suppressed: make(map[string]bool),
		softCounts: make(map[string]int),
		records:    make(map[string]*models.BounceRecord),
	}
}

func (f *fakeBounceStore) GetByAddress(ctx context.Context, address string) (*models.BounceRecord, error) {
	return f.records[address], nil
}

func (f *fakeBounceStore) IsSuppressed(ctx context.Context, address string) (bool, error) {
	return f.suppressed[address], nil
}

func (f *fakeBounceStore) RecordSuppressingBounce(ctx context.Context, address, bounceType, reason string) error {
	f.suppressed[address] = true
	return nil
}

func (f *fakeBounceStore) RecordSoftBounce(ctx context.Context, address, reason string) (int, error) {
	f.softCounts[address]++
	return f.softCounts[address], nil
}

func (f *fakeBounceStore) Suppress(ctx context.Context, address string) error {
	if f.suppressErr != nil {
		return f.suppressErr
	}
	f.suppressed[address] = true
	return nil
}

func (f *fakeBounceStore) Unsuppress(ctx context.Context, address string) error {
	delete(f.suppressed, address)
	return nil
}

func TestRecordBounce_HardBounceSuppressesImmediately(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 5)
	ctx := context.Background()

	require.NoError(t, bs.RecordBounce(ctx, "gone@example.com", models.BounceTypeHard, "550 mailbox not found"))

	suppressed, err := bs.IsSuppressed(ctx, "gone@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestRecordBounce_ComplaintSuppressesImmediately(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 5)
	ctx := context.Background()

	require.NoError(t, bs.RecordBounce(ctx, "annoyed@example.com", models.BounceTypeComplaint, "user complaint"))

	suppressed, _ := bs.IsSuppressed(ctx, "annoyed@example.com")
	assert.True(t, suppressed)
}

func TestRecordBounce_SoftBouncesBelowThresholdDoNotSuppress(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, bs.RecordBounce(ctx, "flaky@example.com", models.BounceTypeSoft, "mailbox full"))
	}

	suppressed, _ := bs.IsSuppressed(ctx, "flaky@example.com")
	assert.False(t, suppressed)
}

func TestRecordBounce_SoftBouncesAtThresholdSuppress(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, bs.RecordBounce(ctx, "flaky@example.com", models.BounceTypeSoft, "mailbox full"))
	}

	suppressed, _ := bs.IsSuppressed(ctx, "flaky@example.com")
	assert.True(t, suppressed)
}

func TestRecordBounce_UnknownTypeRejected(t *testing.T) {
	bs := NewBounceService(newFakeBounceStore(), 5)

	err := bs.RecordBounce(context.Background(), "a@example.com", "weird", "whatever")
	require.Error(t, err)

	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "BAD_REQUEST", serviceErr.Code)
}

func TestNewBounceService_DefaultThreshold(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 0)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, bs.RecordBounce(ctx, "x@example.com", models.BounceTypeSoft, "greylisted"))
	}
	suppressed, _ := bs.IsSuppressed(ctx, "x@example.com")
	assert.False(t, suppressed)

	require.NoError(t, bs.RecordBounce(ctx, "x@example.com", models.BounceTypeSoft, "greylisted"))
	suppressed, _ = bs.IsSuppressed(ctx, "x@example.com")
	assert.True(t, suppressed, "default threshold is five soft bounces")
}

func TestUnsuppress_ClearsSuppression(t *testing.T) {
	store := newFakeBounceStore()
	bs := NewBounceService(store, 5)
	ctx := context.Background()

	require.NoError(t, bs.RecordBounce(ctx, "back@example.com", models.BounceTypeHard, "bounced"))
	require.NoError(t, bs.Unsuppress(ctx, "back@example.com"))

	suppressed, _ := bs.IsSuppressed(ctx, "back@example.com")
	assert.False(t, suppressed)
}
