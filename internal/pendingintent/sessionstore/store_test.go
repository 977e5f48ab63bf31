package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/gymstack/gymstack/internal/clock"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func TestPutGetExpire(t *testing.T) {
	s, err := New(8, clock.Fixed(now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "inv_1", pendingdomain.Intent{OrgID: 1, MemberID: "2", PlanID: "3", InvoiceID: "inv_1"}, time.Hour))

	got, err := s.Get(ctx, "inv_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.MemberID)

	later := clock.WithNow(ctx, now.Add(time.Hour))
	got, err = s.Get(later, "inv_1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, s.cache.Len())
}

func TestScanAndDelete(t *testing.T) {
	s, err := New(8, clock.Fixed(now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "inv_1", pendingdomain.Intent{InvoiceID: "inv_1", PaymentID: "pay_1"}, 0))
	require.NoError(t, s.Put(ctx, "inv_2", pendingdomain.Intent{InvoiceID: "inv_2"}, time.Minute))

	got, err := s.Scan(ctx, func(i pendingdomain.Intent) bool { return i.Matches("pay_1") })
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "inv_1", got.InvoiceID)

	// Expired entries are never matched.
	got, err = s.Scan(clock.WithNow(ctx, now.Add(time.Hour)), func(i pendingdomain.Intent) bool { return i.Matches("inv_2") })
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Delete(ctx, "inv_1"))
	got, err = s.Get(ctx, "inv_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := New(1, clock.Fixed(now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", pendingdomain.Intent{InvoiceID: "a"}, 0))
	require.NoError(t, s.Put(ctx, "b", pendingdomain.Intent{InvoiceID: "b"}, 0))

	got, _ := s.Get(ctx, "a")
	assert.Nil(t, got)
	got, _ = s.Get(ctx, "b")
	assert.NotNil(t, got)
}
