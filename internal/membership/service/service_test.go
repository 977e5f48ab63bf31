package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	auditrepo "github.com/gymstack/gymstack/internal/audit/repository"
	auditservice "github.com/gymstack/gymstack/internal/audit/service"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"github.com/gymstack/gymstack/internal/clock"
	discountdomain "github.com/gymstack/gymstack/internal/discount/domain"
	discountrepo "github.com/gymstack/gymstack/internal/discount/repository"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	memberrepo "github.com/gymstack/gymstack/internal/member/repository"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	membershiprepo "github.com/gymstack/gymstack/internal/membership/repository"
	"github.com/gymstack/gymstack/internal/orgcontext"
	organizationdomain "github.com/gymstack/gymstack/internal/organization/domain"
	organizationrepo "github.com/gymstack/gymstack/internal/organization/repository"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	planrepo "github.com/gymstack/gymstack/internal/plan/repository"
	"github.com/gymstack/gymstack/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	orgID         snowflake.ID = 100
	memberID      snowflake.ID = 201
	otherMemberID snowflake.ID = 202
	archivedID    snowflake.ID = 203
	planID        snowflake.ID = 301
	premiumPlanID snowflake.ID = 302
	freePlanID    snowflake.ID = 303
	discountID    snowflake.ID = 401
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	audit auditdomain.Service
	ctx   context.Context
}

func intPtr(i int) *int                    { return &i }
func strPtr(s string) *string              { return &s }
func boolPtr(b bool) *bool                 { return &b }
func decPtr(v string) *decimal.Decimal     { d := decimal.RequireFromString(v); return &d }
func day(y int, m time.Month, d int) string { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02") }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got.String())
}

func assertDate(t *testing.T, want string, got *time.Time) {
	t.Helper()
	if assert.NotNil(t, got) {
		assert.Equal(t, want, got.UTC().Format("2006-01-02"))
	}
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Serializes transactions the way row locks do on postgres.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&memberdomain.Member{},
		&plandomain.Plan{},
		&discountdomain.Discount{},
		&membershipdomain.Membership{},
		&auditdomain.Note{},
		&billingdomain.Invoice{},
		&billingdomain.Payment{},
	))
	return db
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := fixedNow
	archivedAt := now.Add(-24 * time.Hour)

	require.NoError(t, db.Create(&organizationdomain.Organization{ID: orgID, Name: "Downtown Gym", Timezone: "UTC", Currency: "USD", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&[]memberdomain.Member{
		{ID: memberID, OrgID: orgID, Name: "Ada", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now},
		{ID: otherMemberID, OrgID: orgID, Name: "Grace", Email: "grace@example.com", CreatedAt: now, UpdatedAt: now},
		{ID: archivedID, OrgID: orgID, Name: "Old", ArchivedAt: &archivedAt, CreatedAt: now, UpdatedAt: now},
	}).Error)
	require.NoError(t, db.Create(&[]plandomain.Plan{
		{ID: planID, OrgID: orgID, Name: "Monthly", Type: "unlimited", Venue: "Main", Price: decimal.NewFromInt(100), Currency: "USD",
			CycleDuration: intPtr(1), CycleUnit: strPtr("month"), TotalQuota: intPtr(20), Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: premiumPlanID, OrgID: orgID, Name: "Premium", Type: "unlimited", Venue: "Main", Price: decimal.NewFromInt(150), Currency: "USD",
			CycleDuration: intPtr(1), CycleUnit: strPtr("month"), Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: freePlanID, OrgID: orgID, Name: "Trial", Type: "trial", Price: decimal.Zero, Currency: "USD",
			CycleDuration: intPtr(7), CycleUnit: strPtr("day"), Active: true, CreatedAt: now, UpdatedAt: now},
	}).Error)
	require.NoError(t, db.Create(&discountdomain.Discount{ID: discountID, OrgID: orgID, Code: "SPRING", Value: decimal.NewFromInt(20), Unit: discountdomain.UnitPercent, CreatedAt: now, UpdatedAt: now}).Error)
}

func newFixture(t *testing.T, auditSvc auditdomain.Service) *fixture {
	t.Helper()
	db := openDB(t)
	seed(t, db)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.Fixed(fixedNow)

	if auditSvc == nil {
		auditSvc = auditservice.NewService(auditservice.ServiceParam{
			DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
		})
	}

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       membershiprepo.Provide(),
		MemberRepo: memberrepo.Provide(),
		PlanRepo:   planrepo.Provide(),
		OrgRepo:    organizationrepo.Provide(),
		Pricing:    pricing.NewCalculator(discountrepo.Provide()),
		AuditSvc:   auditSvc,
	}).(*Service)

	return &fixture{
		db:    db,
		svc:   svc,
		audit: auditSvc,
		ctx:   orgcontext.WithOrgID(context.Background(), orgID),
	}
}

func (f *fixture) create(t *testing.T, req membershipdomain.CreateRequest) membershipdomain.Membership {
	t.Helper()
	if req.MemberID == "" {
		req.MemberID = memberID.String()
	}
	if req.PlanID == "" {
		req.PlanID = planID.String()
	}
	res, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)
	require.False(t, res.Existing)
	return res.Membership
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) membershipdomain.Membership {
	t.Helper()
	item, err := f.svc.Get(f.ctx, id.String())
	require.NoError(t, err)
	return item
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) notes(t *testing.T, id snowflake.ID) []auditdomain.Note {
	t.Helper()
	notes, err := f.audit.ListNotes(f.ctx, auditdomain.SubjectMembership, id)
	require.NoError(t, err)
	return notes
}

func TestCreateSnapshotsPlanAndAppliesDiscount(t *testing.T) {
	f := newFixture(t, nil)

	m := f.create(t, membershipdomain.CreateRequest{
		DiscountMode: "auto",
		DiscountID:   discountID.String(),
		Price:        decPtr("1"),
		Note:         "Front desk sale",
	})

	assert.NotZero(t, m.ID)
	assert.Len(t, m.UUID, 36)
	assert.Equal(t, membershipdomain.StatusActive, m.Status)
	assert.Equal(t, "Monthly", m.Name)
	assertDecimal(t, "100", m.Price)
	assertDecimal(t, "80", m.InvoiceTotal)
	assertDecimal(t, "80", m.InvoiceTotalPaid)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, m.InvoiceStatus)
	assert.Equal(t, "USD", m.InvoiceCurrency)
	require.NotNil(t, m.InvoiceDueAt)
	assert.Equal(t, fixedNow.Add(time.Hour), m.InvoiceDueAt.UTC())
	require.NotNil(t, m.DiscountID)
	assert.Equal(t, discountID, *m.DiscountID)
	assert.Equal(t, "percent", *m.DiscountUnit)
	assertDate(t, "2026-05-10", m.StartDate)
	assertDate(t, "2026-06-10", m.EndDate)
	require.NotNil(t, m.TotalQuota)
	assert.Equal(t, 20, *m.TotalQuota)

	stored := f.reload(t, m.ID)
	assert.Equal(t, m.UUID, stored.UUID)
	assertDecimal(t, "80", stored.InvoiceTotal)
	assert.Len(t, f.notes(t, m.ID), 1)
}

func TestCreateStatusFollowsStartDate(t *testing.T) {
	f := newFixture(t, nil)

	upcoming := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 6, 1)})
	assert.Equal(t, membershipdomain.StatusUpcoming, upcoming.Status)
	assertDate(t, "2026-07-01", upcoming.EndDate)

	forced := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String(), StartDate: day(2026, 6, 1), ForceActive: true})
	assert.Equal(t, membershipdomain.StatusActive, forced.Status)
}

func TestCreateConvertsLocalDatesWithOrganizationTimezone(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.db.Model(&organizationdomain.Organization{}).Where("id = ?", orgID).Update("timezone", "America/New_York").Error)

	m := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 5, 10), EndDate: day(2026, 5, 20)})
	require.NotNil(t, m.StartAt)
	assert.Equal(t, time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC), m.StartAt.UTC())
	assertDate(t, "2026-05-20", m.EndDate)
}

func TestCreateRejectsEndBeforeStart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(f.ctx, membershipdomain.CreateRequest{
		MemberID: memberID.String(), PlanID: planID.String(),
		StartDate: day(2026, 5, 10), EndDate: day(2026, 5, 9),
	})
	require.ErrorIs(t, err, membershipdomain.ErrInvalidDateRange)
	assert.Zero(t, f.count(t, &membershipdomain.Membership{}))
}

func TestCreateNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(f.ctx, membershipdomain.CreateRequest{MemberID: "999", PlanID: planID.String()})
	assert.ErrorIs(t, err, memberdomain.ErrMemberNotFound)

	_, err = f.svc.Create(f.ctx, membershipdomain.CreateRequest{MemberID: memberID.String(), PlanID: "999"})
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = f.svc.Create(f.ctx, membershipdomain.CreateRequest{PlanID: planID.String()})
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidRequest)

	_, err = f.svc.Create(context.Background(), membershipdomain.CreateRequest{MemberID: memberID.String(), PlanID: planID.String()})
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidOrganization)
}

func TestCreateReturnsExistingLiveMembership(t *testing.T) {
	f := newFixture(t, nil)
	first := f.create(t, membershipdomain.CreateRequest{})

	res, err := f.svc.Create(f.ctx, membershipdomain.CreateRequest{MemberID: memberID.String(), PlanID: planID.String()})
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Equal(t, first.ID, res.Membership.ID)
	assert.EqualValues(t, 1, f.count(t, &membershipdomain.Membership{}))

	// A different plan is not a duplicate.
	other := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String()})
	assert.NotEqual(t, first.ID, other.ID)

	// Re-subscribing after cancellation is allowed.
	_, err = f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: first.ID.String()})
	require.NoError(t, err)
	again := f.create(t, membershipdomain.CreateRequest{})
	assert.NotEqual(t, first.ID, again.ID)
}

func TestCreateConcurrentDeliveriesCreateOnce(t *testing.T) {
	f := newFixture(t, nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]membershipdomain.CreateResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Create(f.ctx, membershipdomain.CreateRequest{MemberID: memberID.String(), PlanID: planID.String()})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Existing {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.EqualValues(t, 1, f.count(t, &membershipdomain.Membership{}))
}

func TestCreateTxHookFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t, nil)
	hookErr := errors.New("invoice write failed")

	_, err := f.svc.Create(f.ctx, membershipdomain.CreateRequest{
		MemberID: memberID.String(), PlanID: planID.String(), Note: "should vanish",
	}, membershipdomain.WithTxHook(func(ctx context.Context, tx *gorm.DB, m *membershipdomain.Membership) error {
		require.NotZero(t, m.ID)
		if err := tx.Create(&billingdomain.Invoice{
			ID: 1, OrgID: m.OrgID, Number: billingdomain.NewInvoiceNumber(fixedNow), MembershipID: m.ID, MemberID: m.MemberID,
			Total: m.InvoiceTotal, Currency: m.InvoiceCurrency, Status: billingdomain.InvoiceStatusPaid,
			CreatedAt: fixedNow, UpdatedAt: fixedNow,
		}).Error; err != nil {
			return err
		}
		return hookErr
	}))
	require.ErrorIs(t, err, hookErr)

	assert.Zero(t, f.count(t, &membershipdomain.Membership{}))
	assert.Zero(t, f.count(t, &billingdomain.Invoice{}))
	assert.Zero(t, f.count(t, &auditdomain.Note{}))
}

func TestModifyDatesAutoDetermineKeepsCurrentLength(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 5, 10), EndDate: day(2026, 5, 20)})

	out, err := f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{
		MembershipID: m.ID.String(), StartDate: day(2026, 5, 1), AutoDetermineEndDate: true, Note: "moved",
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assertDate(t, "2026-05-01", out.StartDate)
	assertDate(t, "2026-05-11", out.EndDate)
	assert.Equal(t, membershipdomain.StatusActive, out.Status)

	notes := f.notes(t, m.ID)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Body, "2026-05-10 -> 2026-05-01")

	out, err = f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{
		MembershipID: m.ID.String(), StartDate: day(2026, 4, 1), EndDate: day(2026, 5, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusExpired, out.Status)

	out, err = f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{
		MembershipID: m.ID.String(), StartDate: day(2026, 6, 1), EndDate: day(2026, 7, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusUpcoming, out.Status)
}

func TestModifyDatesRejectsEndBeforeStartAtomically(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	out, err := f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{
		MembershipID: m.ID.String(), StartDate: day(2026, 7, 1), EndDate: day(2026, 6, 1), Note: "bad",
	})
	require.ErrorIs(t, err, membershipdomain.ErrInvalidDateRange)
	assert.Nil(t, out)

	stored := f.reload(t, m.ID)
	assertDate(t, "2026-05-10", stored.StartDate)
	assertDate(t, "2026-06-10", stored.EndDate)
	assert.Empty(t, f.notes(t, m.ID))
}

func TestModifyDatesOverridesHoldStatus(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	held, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 9), HoldEndDate: day(2026, 5, 12)})
	require.NoError(t, err)
	require.Equal(t, membershipdomain.StatusHold, held.Status)

	out, err := f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{MembershipID: m.ID.String(), StartDate: day(2026, 5, 1)})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusActive, out.Status)
	assertDate(t, "2026-06-13", out.EndDate)
	require.Len(t, out.Extension.Holds, 1)
	assert.Equal(t, "2026-05-10", out.Extension.Holds[0].ResumedOn)

	res, err := f.svc.SweepStatuses(f.ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
	assert.Equal(t, membershipdomain.StatusActive, f.reload(t, m.ID).Status)
}

func TestNonModifiableRecordsAreNoops(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})
	_, err := f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: m.ID.String()})
	require.NoError(t, err)

	id := m.ID.String()
	out, err := f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{MembershipID: id, StartDate: day(2026, 5, 1)})
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.svc.ModifyLimits(f.ctx, membershipdomain.ModifyLimitsRequest{MembershipID: id, NumberOfClasses: intPtr(3)})
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: id, HoldStartDate: day(2026, 5, 9), HoldEndDate: day(2026, 5, 12)})
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{MembershipID: id, PlanID: premiumPlanID.String()})
	assert.NoError(t, err)
	assert.Nil(t, out)

	_, err = f.svc.ModifyDates(f.ctx, membershipdomain.ModifyDatesRequest{MembershipID: "12345", StartDate: day(2026, 5, 1)})
	assert.ErrorIs(t, err, membershipdomain.ErrMembershipNotFound)
}

func TestModifyLimitsMergesAndPreservesLegacyNote(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})
	require.NoError(t, f.db.Exec("UPDATE memberships SET note = ? WHERE id = ?", "Gift from employer", m.ID).Error)

	out, err := f.svc.ModifyLimits(f.ctx, membershipdomain.ModifyLimitsRequest{
		MembershipID: m.ID.String(), NumberOfClasses: intPtr(0), AllowSharing: boolPtr(true),
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Nil(t, out.TotalQuota)

	_, err = f.svc.ModifyLimits(f.ctx, membershipdomain.ModifyLimitsRequest{
		MembershipID: m.ID.String(), NumberOfClasses: intPtr(12), HoldDays: intPtr(14),
	})
	require.NoError(t, err)

	stored := f.reload(t, m.ID)
	require.NotNil(t, stored.TotalQuota)
	assert.Equal(t, 12, *stored.TotalQuota)
	assert.Equal(t, "Gift from employer", stored.Extension.LegacyNote)
	require.NotNil(t, stored.Extension.Limits)
	assert.True(t, *stored.Extension.Limits.AllowSharing)
	assert.Equal(t, 14, *stored.Extension.Limits.HoldDays)

	_, err = f.svc.ModifyLimits(f.ctx, membershipdomain.ModifyLimitsRequest{MembershipID: m.ID.String(), NumberOfClasses: intPtr(-1)})
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidRequest)
}

func TestHoldCoveringTodayExtendsEndAndHolds(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	out, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{
		MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 8), HoldEndDate: day(2026, 5, 15), Reason: "injury",
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, membershipdomain.StatusHold, out.Status)
	assertDate(t, "2026-06-17", out.EndDate)
	require.Len(t, out.Extension.Holds, 1)
	assert.Equal(t, 7, out.Extension.Holds[0].DurationDays)
	require.NotNil(t, out.Extension.HoldInfo)
	assert.Equal(t, "injury", out.Extension.HoldInfo.Reason)

	again, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{
		MembershipID: m.ID.String(), HoldStartDate: day(2026, 7, 1), HoldEndDate: day(2026, 7, 5),
	})
	assert.NoError(t, err)
	assert.Nil(t, again)

	stored := f.reload(t, m.ID)
	assert.Equal(t, membershipdomain.StatusHold, stored.Status)
	assertDate(t, "2026-06-17", stored.EndDate)
}

func TestHoldRejectsExpiredRecords(t *testing.T) {
	f := newFixture(t, nil)
	expired := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 3, 1), EndDate: day(2026, 5, 12)})
	limited := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String()})
	for id, status := range map[snowflake.ID]membershipdomain.Status{
		expired.ID: membershipdomain.StatusExpired,
		limited.ID: membershipdomain.StatusExpiredLimit,
	} {
		require.NoError(t, f.db.Model(&membershipdomain.Membership{}).Where("id = ?", id).Update("status", status).Error)
	}

	for _, m := range []membershipdomain.Membership{expired, limited} {
		out, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 9), HoldEndDate: day(2026, 5, 12)})
		assert.NoError(t, err)
		assert.Nil(t, out)

		stored := f.reload(t, m.ID)
		assert.Empty(t, stored.Extension.Holds)
		assert.Equal(t, m.EndDate.Format("2006-01-02"), stored.EndDate.Format("2006-01-02"))
	}
}

func TestHoldOutsideTodayKeepsStatus(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	out, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 20), HoldEndDate: day(2026, 5, 25)})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusActive, out.Status)
	assertDate(t, "2026-06-15", out.EndDate)

	overlap, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 24), HoldEndDate: day(2026, 5, 30)})
	assert.NoError(t, err)
	assert.Nil(t, overlap)

	past, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 1), HoldEndDate: day(2026, 5, 3)})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusActive, past.Status)
	assertDate(t, "2026-06-17", past.EndDate)
	assert.Len(t, past.Extension.Holds, 2)
	assert.Equal(t, day(2026, 5, 1), past.Extension.HoldInfo.StartDate)

	_, err = f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 8, 5), HoldEndDate: day(2026, 8, 5)})
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidHoldRange)
}

func TestResumeReturnsUnusedHoldDays(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	_, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{MembershipID: m.ID.String(), HoldStartDate: day(2026, 5, 8), HoldEndDate: day(2026, 5, 15)})
	require.NoError(t, err)

	out, err := f.svc.Resume(f.ctx, membershipdomain.ResumeRequest{MembershipID: m.ID.String(), Note: "back early"})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, membershipdomain.StatusActive, out.Status)
	assertDate(t, "2026-06-12", out.EndDate)
	assert.Equal(t, "2026-05-10", out.Extension.HoldInfo.ResumedOn)
	assert.Equal(t, "2026-05-10", out.Extension.Holds[0].ResumedOn)

	again, err := f.svc.Resume(f.ctx, membershipdomain.ResumeRequest{MembershipID: m.ID.String()})
	assert.NoError(t, err)
	assert.Nil(t, again)
}

type failingAudit struct {
	mock.Mock
}

func (m *failingAudit) AppendNote(ctx context.Context, tx *gorm.DB, req auditdomain.AppendNoteRequest) (*auditdomain.Note, error) {
	args := m.Called(ctx, tx, req)
	return nil, args.Error(1)
}

func (m *failingAudit) ListNotes(ctx context.Context, subjectType string, subjectID snowflake.ID) ([]auditdomain.Note, error) {
	args := m.Called(ctx, subjectType, subjectID)
	return nil, args.Error(1)
}

func TestCancelDistinguishesReasons(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})

	out, err := f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: m.ID.String(), Reason: "moving away"})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusCanceled, out.Status)
	assert.True(t, out.IsCanceled)
	require.NotNil(t, out.CanceledAt)
	assert.Equal(t, fixedNow, out.CanceledAt.UTC())

	notes := f.notes(t, m.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, auditdomain.CategoryCancellation, notes[0].Category)
	assert.Contains(t, notes[0].Body, "moving away")

	_, err = f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: m.ID.String()})
	assert.ErrorIs(t, err, membershipdomain.ErrMembershipAlreadyCanceled)

	deleted := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String()})
	require.NoError(t, f.db.Model(&membershipdomain.Membership{}).Where("id = ?", deleted.ID).
		Updates(map[string]any{"is_deleted": true, "status": membershipdomain.StatusDeleted}).Error)
	_, err = f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: deleted.ID.String()})
	assert.ErrorIs(t, err, membershipdomain.ErrMembershipDeleted)

	_, err = f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: "12345"})
	assert.ErrorIs(t, err, membershipdomain.ErrMembershipNotFound)
}

func TestCancelSurvivesNoteFailure(t *testing.T) {
	audit := &failingAudit{}
	audit.On("AppendNote", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("notes unavailable"))
	f := newFixture(t, audit)

	m := f.create(t, membershipdomain.CreateRequest{})
	out, err := f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: m.ID.String()})
	require.NoError(t, err)
	require.NotNil(t, out)

	stored := f.reload(t, m.ID)
	assert.Equal(t, membershipdomain.StatusCanceled, stored.Status)
	assert.True(t, stored.IsCanceled)
	audit.AssertExpectations(t)
}

func TestUpgradeInvoiceBranches(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{DiscountMode: "auto", DiscountID: discountID.String()})

	paid, err := f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{
		MembershipID: m.ID.String(), PlanID: premiumPlanID.String(), PaidUpgrade: true, UpgradeFee: decPtr("25"), PaymentMethod: "card", ReceiptReference: "R-1",
	})
	require.NoError(t, err)
	assert.Equal(t, premiumPlanID, paid.PlanID)
	assert.Equal(t, "Premium", paid.Name)
	assertDecimal(t, "150", paid.Price)
	assertDecimal(t, "25", paid.InvoiceTotal)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, paid.InvoiceStatus)
	assert.Equal(t, "card", paid.InvoiceMethod)
	assert.Nil(t, paid.DiscountID)
	assert.Nil(t, paid.TotalQuota)

	swap, err := f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{MembershipID: m.ID.String(), PlanID: planID.String()})
	require.NoError(t, err)
	assertDecimal(t, "100", swap.InvoiceTotal)
	assert.Equal(t, billingdomain.InvoiceStatusPending, swap.InvoiceStatus)

	free, err := f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{MembershipID: m.ID.String(), PlanID: freePlanID.String()})
	require.NoError(t, err)
	assertDecimal(t, "0", free.InvoiceTotal)
	assert.Equal(t, billingdomain.InvoiceStatusFree, free.InvoiceStatus)

	_, err = f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{MembershipID: m.ID.String(), PlanID: "999"})
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = f.svc.Upgrade(f.ctx, membershipdomain.UpgradeRequest{MembershipID: m.ID.String(), PlanID: premiumPlanID.String(), PaidUpgrade: true})
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidUpgradeFee)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{})
	id := m.ID.String()

	tests := []struct {
		name string
		req  membershipdomain.TransferRequest
		want error
	}{
		{"unknown target", membershipdomain.TransferRequest{MembershipID: id, ToMemberID: "999"}, membershipdomain.ErrTransferTargetNotFound},
		{"same member", membershipdomain.TransferRequest{MembershipID: id, ToMemberID: memberID.String()}, membershipdomain.ErrTransferSameMember},
		{"archived target", membershipdomain.TransferRequest{MembershipID: id, ToMemberID: archivedID.String()}, membershipdomain.ErrTransferTargetArchived},
		{"paid without fee", membershipdomain.TransferRequest{MembershipID: id, ToMemberID: otherMemberID.String(), PaidTransfer: true, PaymentMethod: "cash"}, membershipdomain.ErrInvalidTransferFee},
		{"paid bad method", membershipdomain.TransferRequest{MembershipID: id, ToMemberID: otherMemberID.String(), PaidTransfer: true, TransferFee: decPtr("10"), PaymentMethod: "cheque"}, membershipdomain.ErrInvalidPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transfer(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	stored := f.reload(t, m.ID)
	assert.Equal(t, memberID, stored.MemberID)
	assert.Empty(t, f.notes(t, m.ID))
}

func TestTransferProRateValidation(t *testing.T) {
	f := newFixture(t, nil)

	expired := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 3, 1), EndDate: day(2026, 4, 1)})
	_, err := f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{MembershipID: expired.ID.String(), ToMemberID: otherMemberID.String(), CreateNewPlanAndProRate: true})
	assert.ErrorIs(t, err, membershipdomain.ErrTransferNoRemainingDays)

	free := f.create(t, membershipdomain.CreateRequest{PlanID: freePlanID.String()})
	_, err = f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{MembershipID: free.ID.String(), ToMemberID: otherMemberID.String(), CreateNewPlanAndProRate: true})
	assert.ErrorIs(t, err, membershipdomain.ErrTransferInvalidPrice)

	undated := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String()})
	require.NoError(t, f.db.Exec("UPDATE memberships SET end_date = NULL, end_at = NULL WHERE id = ?", undated.ID).Error)
	_, err = f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{MembershipID: undated.ID.String(), ToMemberID: otherMemberID.String(), CreateNewPlanAndProRate: true})
	assert.ErrorIs(t, err, membershipdomain.ErrTransferMissingDates)

	assert.EqualValues(t, 3, f.count(t, &membershipdomain.Membership{}))
}

func TestTransferSimplePaid(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{DiscountMode: "auto", DiscountID: discountID.String()})

	out, err := f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{
		MembershipID: m.ID.String(), ToMemberID: otherMemberID.String(),
		PaidTransfer: true, TransferFee: decPtr("10"), PaymentMethod: "bank_transfer", ReceiptReference: "TR-9",
	})
	require.NoError(t, err)
	assert.Equal(t, m.ID, out.ID)
	assert.Equal(t, otherMemberID, out.MemberID)
	assertDecimal(t, "90", out.InvoiceTotal)
	assertDecimal(t, "90", out.InvoiceTotalPaid)
	assert.Equal(t, "bank_transfer", out.InvoiceMethod)
	assert.Equal(t, "TR-9", out.InvoiceReceipt)
	assert.Len(t, f.notes(t, m.ID), 1)

	// The new owner now holds the live membership for this plan.
	_, err = f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{MembershipID: f.create(t, membershipdomain.CreateRequest{}).ID.String(), ToMemberID: otherMemberID.String()})
	assert.ErrorIs(t, err, membershipdomain.ErrTransferTargetHasMembership)
}

func TestTransferProRated(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 5, 1), EndDate: day(2026, 5, 31)})

	out, err := f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{
		MembershipID: m.ID.String(), ToMemberID: otherMemberID.String(), CreateNewPlanAndProRate: true,
		PaidTransfer: true, TransferFee: decPtr("5"), PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.NotEqual(t, m.ID, out.ID)
	assert.NotEqual(t, m.UUID, out.UUID)
	assert.Equal(t, otherMemberID, out.MemberID)
	assert.Equal(t, membershipdomain.StatusActive, out.Status)
	assertDate(t, "2026-05-10", out.StartDate)
	assertDate(t, "2026-05-31", out.EndDate)
	// 21 of 30 days remain.
	assertDecimal(t, "70", out.Price)
	assertDecimal(t, "75", out.InvoiceTotal)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, out.InvoiceStatus)

	original := f.reload(t, m.ID)
	assert.Equal(t, membershipdomain.StatusCanceled, original.Status)
	assert.True(t, original.IsCanceled)
	assertDate(t, "2026-05-10", original.EndDate)
	assertDecimal(t, "100", original.Price)

	assert.Len(t, f.notes(t, m.ID), 1)
	assert.Len(t, f.notes(t, out.ID), 1)
}

func TestTransferProRatedRollsBackBothRecords(t *testing.T) {
	f := newFixture(t, nil)
	m := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 5, 1), EndDate: day(2026, 5, 31)})

	injected := errors.New("insert failed")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_membership_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "memberships" {
			_ = tx.AddError(injected)
		}
	}))

	_, err := f.svc.Transfer(f.ctx, membershipdomain.TransferRequest{
		MembershipID: m.ID.String(), ToMemberID: otherMemberID.String(), CreateNewPlanAndProRate: true,
	})
	require.ErrorIs(t, err, injected)

	stored := f.reload(t, m.ID)
	assert.Equal(t, membershipdomain.StatusActive, stored.Status)
	assert.False(t, stored.IsCanceled)
	assertDate(t, "2026-05-31", stored.EndDate)
	assert.EqualValues(t, 1, f.count(t, &membershipdomain.Membership{}))
	assert.Empty(t, f.notes(t, m.ID))
}

func TestComputeProration(t *testing.T) {
	d := func(m time.Month, dd int) time.Time { return time.Date(2026, m, dd, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name      string
		today     time.Time
		remaining int
		price     string
	}{
		{"mid window", d(5, 10), 21, "70"},
		{"before start", d(4, 20), 30, "100"},
		{"on end date", d(5, 31), 0, "0"},
		{"after end", d(6, 15), 0, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := computeProration(d(5, 1), d(5, 31), tt.today, decimal.NewFromInt(100))
			assert.Equal(t, 30, p.TotalDays)
			assert.Equal(t, tt.remaining, p.RemainingDays)
			assertDecimal(t, tt.price, p.Price)
		})
	}

	zero := computeProration(d(5, 1), d(5, 1), d(5, 1), decimal.NewFromInt(100))
	assert.True(t, zero.Price.IsZero())
}

func TestReinstateRecomputesFromDates(t *testing.T) {
	f := newFixture(t, nil)
	past := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 3, 1), EndDate: day(2026, 4, 1)})
	future := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String(), StartDate: day(2026, 6, 1)})

	for _, id := range []snowflake.ID{past.ID, future.ID} {
		_, err := f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: id.String()})
		require.NoError(t, err)
	}

	out, err := f.svc.Reinstate(f.ctx, membershipdomain.ReinstateRequest{MembershipID: past.ID.String(), Note: "billing error"})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusExpired, out.Status)
	assert.False(t, out.IsCanceled)
	assert.Nil(t, out.CanceledAt)

	out, err = f.svc.Reinstate(f.ctx, membershipdomain.ReinstateRequest{MembershipID: future.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.StatusUpcoming, out.Status)

	noop, err := f.svc.Reinstate(f.ctx, membershipdomain.ReinstateRequest{MembershipID: future.ID.String()})
	assert.NoError(t, err)
	assert.Nil(t, noop)
}

func TestSweepStatuses(t *testing.T) {
	f := newFixture(t, nil)
	upcoming := f.create(t, membershipdomain.CreateRequest{StartDate: day(2026, 5, 20)})
	held := f.create(t, membershipdomain.CreateRequest{PlanID: premiumPlanID.String()})
	canceled := f.create(t, membershipdomain.CreateRequest{PlanID: freePlanID.String(), StartDate: day(2026, 5, 20)})

	_, err := f.svc.Hold(f.ctx, membershipdomain.HoldRequest{
		MembershipID: held.ID.String(), HoldStartDate: day(2026, 5, 20), HoldEndDate: day(2026, 5, 25), AutoResume: true,
	})
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, membershipdomain.CancelRequest{MembershipID: canceled.ID.String()})
	require.NoError(t, err)

	res, err := f.svc.SweepStatuses(clock.WithNow(f.ctx, time.Date(2026, 5, 21, 1, 0, 0, 0, time.UTC)), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Transitions["UPCOMING->ACTIVE"])
	assert.Equal(t, 1, res.Transitions["ACTIVE->HOLD"])
	assert.Equal(t, membershipdomain.StatusActive, f.reload(t, upcoming.ID).Status)
	assert.Equal(t, membershipdomain.StatusHold, f.reload(t, held.ID).Status)

	res, err = f.svc.SweepStatuses(clock.WithNow(f.ctx, time.Date(2026, 5, 25, 1, 0, 0, 0, time.UTC)), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transitions["HOLD->ACTIVE"])
	resumed := f.reload(t, held.ID)
	assert.Equal(t, "2026-05-25", resumed.Extension.HoldInfo.ResumedOn)

	res, err = f.svc.SweepStatuses(clock.WithNow(f.ctx, time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Transitions["ACTIVE->EXPIRED"])
	assert.Equal(t, membershipdomain.StatusCanceled, f.reload(t, canceled.ID).Status)
}
