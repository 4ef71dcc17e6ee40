package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/tenant"
	testutil "github.com/trezcool/feeledger/tests"
)

func setClock(t *testing.T, now time.Time) {
	t.Helper()
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = time.Now })
}

func pay(t *testing.T, env *testutil.Env, orgID, feeID, amount string) {
	t.Helper()
	_, err := env.Recorder.RecordPayment(context.Background(), payment.NewPayment{
		OrganizationID: orgID, FeeID: feeID, Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
}

// seed bills 5000 tuition and 1000 transport (overdue), collecting 2000 in May and 1500 + 1000 in September 2024.
func seed(t *testing.T, env *testutil.Env) testutil.School {
	t.Helper()
	setClock(t, time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC))
	school := env.NewSchool(t, "alpha")
	tuition := env.CreateFee(t, school, "5000", time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC))
	transport := env.CreateFee(t, school.With(school.Student, env.CreateCategory(t, school.Org.ID, "Transport")), "1000",
		time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC))

	setClock(t, time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC))
	pay(t, env, school.Org.ID, tuition.ID, "2000")
	setClock(t, time.Date(2024, time.September, 20, 0, 0, 0, 0, time.UTC))
	pay(t, env, school.Org.ID, tuition.ID, "1500")
	pay(t, env, school.Org.ID, transport.ID, "1000")

	other := env.NewSchool(t, "beta")
	pay(t, env, other.Org.ID, env.CreateFee(t, other, "800", time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)).ID, "800")
	return school
}

func TestService_MonthlyCollections(t *testing.T) {
	env := testutil.NewEnv(t)
	school := seed(t, env)

	months, err := env.Reports.MonthlyCollections(context.Background(), env.Context(t, school.Admin), school.Year.ID)
	require.NoError(t, err)
	require.Len(t, months, 12, "every month of the academic year, including empty ones")
	assert.Equal(t, "2024-04", months[0].Month)
	assert.Equal(t, "2025-03", months[11].Month)

	want := map[string]string{"2024-05": "2000", "2024-09": "2500"}
	for _, m := range months {
		expected, ok := want[m.Month]
		if !ok {
			expected = "0"
		}
		assert.True(t, decimal.RequireFromString(expected).Equal(m.Amount), "%s: want %s, got %s", m.Month, expected, m.Amount)
	}
	assert.Equal(t, 2, months[5].Count)
}

func TestService_CategoryDistribution(t *testing.T) {
	env := testutil.NewEnv(t)
	school := seed(t, env)

	categories, err := env.Reports.CategoryDistribution(context.Background(), env.Context(t, school.Admin), school.Year.ID)
	require.NoError(t, err)
	require.Len(t, categories, 2)

	byName := map[string]report.CategoryTotal{}
	for _, c := range categories {
		byName[c.CategoryName] = c
	}
	assert.Equal(t, "3500", byName["Tuition"].Paid.String())
	assert.Equal(t, "1500", byName["Tuition"].Pending.String())
	assert.Equal(t, "1000", byName["Transport"].Total.String())
	assert.True(t, byName["Transport"].Pending.IsZero())

	t.Run("empty year", func(t *testing.T) {
		year := env.CreateAcademicYear(t, school.Org.ID, "2030-2031",
			time.Date(2030, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(2031, time.March, 31, 0, 0, 0, 0, time.UTC))
		categories, err := env.Reports.CategoryDistribution(context.Background(), env.Context(t, school.Admin), year.ID)
		require.NoError(t, err)
		assert.NotNil(t, categories)
		assert.Empty(t, categories)
	})
}

func TestService_OrganizationSummary(t *testing.T) {
	env := testutil.NewEnv(t)
	school := seed(t, env)
	ctx := context.Background()
	admin := env.Context(t, school.Admin)

	s, err := env.Reports.OrganizationSummary(ctx, admin, school.Year.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.FeeCount)
	assert.Equal(t, "6000", s.TotalFees.String())
	assert.Equal(t, "4500", s.Collected.String())
	assert.Equal(t, "1500", s.Pending.String())
	assert.Equal(t, 75, s.CollectionPercentage)
	assert.Equal(t, 0, s.OverdueCount, "the transport fee was settled")
	assert.Equal(t, "2500", s.CollectedThisMonth.String())

	tests := []struct {
		name    string
		tc      tenant.Context
		yearID  string
		wantErr bool
	}{
		{name: "parent", tc: env.Context(t, school.Parent), yearID: school.Year.ID},
		{name: "student", tc: env.Context(t, school.Pupil), yearID: school.Year.ID},
		{name: "no year", tc: admin, yearID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Reports.OrganizationSummary(ctx, tt.tc, tt.yearID)
			assert.Error(t, err)
			if tt.yearID != "" {
				assert.Equal(t, tenant.ErrForbidden, err)
			}
		})
	}
}

func TestService_cache(t *testing.T) {
	env := testutil.NewEnv(t)
	school := seed(t, env)
	ctx := context.Background()
	admin := env.Context(t, school.Admin)

	before, err := env.Reports.OrganizationSummary(ctx, admin, school.Year.ID)
	require.NoError(t, err)

	var cached report.OrganizationSummary
	found, err := env.Cache.Get(ctx, report.CacheKeyPrefix(school.Org.ID)+school.Year.ID+":"+report.KindSummary, &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, before.Collected.String(), cached.Collected.String())

	// recording a payment invalidates the organization's reports
	f := env.CreateFee(t, school.With(school.Student, env.CreateCategory(t, school.Org.ID, "Library")), "400", time.Now().AddDate(1, 0, 0))
	pay(t, env, school.Org.ID, f.ID, "400")

	after, err := env.Reports.OrganizationSummary(ctx, admin, school.Year.ID)
	require.NoError(t, err)
	assert.Equal(t, "4900", after.Collected.String())
	assert.Equal(t, 3, after.FeeCount)

	t.Run("cache failures fall back to the database", func(t *testing.T) {
		svc := report.NewService(env.ReportRepo, brokenCache{}, env.Logger)
		s, err := svc.OrganizationSummary(ctx, admin, school.Year.ID)
		require.NoError(t, err)
		assert.Equal(t, "4900", s.Collected.String())
	})
}

type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string, interface{}) (bool, error) { return false, errCacheDown }
func (brokenCache) Set(context.Context, string, interface{}) error { return errCacheDown }
func (brokenCache) DeletePrefix(context.Context, string) error { return errCacheDown }
