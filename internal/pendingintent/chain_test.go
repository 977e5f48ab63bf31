package pendingintent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gymstack/gymstack/internal/clock"
	pendingdomain "github.com/gymstack/gymstack/internal/pendingintent/domain"
	"github.com/gymstack/gymstack/internal/pendingintent/redisstore"
	"github.com/gymstack/gymstack/internal/pendingintent/sessionstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newChain(t *testing.T) (*Chain, *miniredis.Miniredis, *sessionstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	session, err := sessionstore.New(16, clock.Fixed(now))
	require.NoError(t, err)

	chain := NewChain(30*time.Minute, clock.Fixed(now), zap.NewNop(), redisstore.New(client, zap.NewNop()), session)
	return chain, mr, session
}

func TestStageWritesEveryIdentifierToEveryStore(t *testing.T) {
	chain, mr, session := newChain(t)
	ctx := context.Background()

	staged, err := chain.Stage(ctx, pendingdomain.Intent{OrgID: 1, MemberID: "2", PlanID: "3", InvoiceID: "inv_1", PaymentID: "pay_1"})
	require.NoError(t, err)
	require.NotNil(t, staged.ExpiresAt)
	assert.Equal(t, now.Add(30*time.Minute), *staged.ExpiresAt)
	assert.Equal(t, now, staged.CreatedAt)

	assert.True(t, mr.Exists("payment_pending_inv_1"))
	assert.True(t, mr.Exists("payment_pending_pay_1"))
	got, err := session.Get(ctx, "pay_1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	chain.Clear(ctx, "inv_1", "pay_1")
	assert.False(t, mr.Exists("payment_pending_inv_1"))
	got, err = session.Get(ctx, "inv_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStageSurvivesOneStoreDown(t *testing.T) {
	chain, mr, session := newChain(t)
	mr.Close()
	ctx := context.Background()

	_, err := chain.Stage(ctx, pendingdomain.Intent{OrgID: 1, MemberID: "2", PlanID: "3", InvoiceID: "inv_1"})
	require.NoError(t, err)

	got, err := session.Get(ctx, "inv_1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestStageRejectsIncompleteIntent(t *testing.T) {
	chain, _, _ := newChain(t)

	_, err := chain.Stage(context.Background(), pendingdomain.Intent{OrgID: 1, MemberID: "2", PlanID: "3"})
	assert.ErrorIs(t, err, pendingdomain.ErrInvalidIntent)

	_, err = chain.Stage(context.Background(), pendingdomain.Intent{InvoiceID: "inv_1"})
	assert.ErrorIs(t, err, pendingdomain.ErrInvalidIntent)
}
