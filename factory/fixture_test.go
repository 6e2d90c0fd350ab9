package factory_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/factory"
	"github.com/warp/dues-engine/generic"
	"github.com/warp/dues-engine/generic/store"
)

var now = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func newService() *association.Service {
	return association.NewService(store.NewMemory(),
		association.WithClock(func() time.Time { return now }),
		association.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func newFactory() *factory.FixtureFactory {
	return factory.NewFixtureFactory().WithNow(func() time.Time { return now })
}

func TestParseFixture_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
	}{
		{"malformed json", `{"persons": [`},
		{"missing name", `{"persons": [{"ref": "p"}]}`},
		{"duplicate ref", `{"persons": [{"ref": "p", "name": "A"}], "members": [{"ref": "p", "name": "B"}]}`},
		{"unknown member", `{
			"activities": [{"ref": "a", "in_days": 1, "description": "x", "priority": 1, "due": "1"}],
			"registrations": [{"ref": "r", "member": "ghost", "activity": "a"}]}`},
		{"bad amount", `{"activities": [{"ref": "a", "in_days": 1, "description": "x", "priority": 1, "due": "ten"}]}`},
		{"priority out of range", `{"activities": [{"ref": "a", "in_days": 1, "description": "x", "priority": 11, "due": "1"}]}`},
		{"no date", `{"activities": [{"ref": "a", "description": "x", "priority": 1, "due": "1"}]}`},
		{"payment before registration", `{"payments": [{"registration": "r", "amount": "1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFactory().ParseFixture(tt.fixture)
			assert.Error(t, err)
		})
	}
}

func TestLoad_GuestDiscountScenario(t *testing.T) {
	// GIVEN: The guest-discount preset
	ctx := context.Background()
	svc := newService()

	// WHEN: Loading it
	loaded, err := newFactory().Load(ctx, svc, factory.GuestDiscountJSON)
	require.NoError(t, err)

	// THEN: Refs resolve and the activity expects 280
	require.Contains(t, loaded.Activities, "gala")
	assert.Len(t, loaded.Registrations, 3)

	stat, err := svc.ActivityStats(ctx, loaded.Activities["gala"])
	require.NoError(t, err)
	assert.True(t, generic.MustParseAmount("280").Equal(stat.Expected), "got %s", stat.Expected)
}

func TestLoad_SingleMemberScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	loaded, err := newFactory().Load(ctx, svc, factory.SingleMemberJSON)
	require.NoError(t, err)

	bal, err := svc.AttendanceBalance(ctx, loaded.Registrations["alice-workshop"])
	require.NoError(t, err)
	assert.True(t, generic.MustParseAmount("20").Equal(bal.Remaining))

	// The documented follow-up payment of 25 is rejected
	_, err = svc.RecordPayment(ctx, loaded.Registrations["alice-workshop"], generic.MustParseAmount("25"), "")
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func TestLoad_EveryPresetLoads(t *testing.T) {
	for _, s := range factory.Scenarios() {
		t.Run(s.ID, func(t *testing.T) {
			_, err := newFactory().Load(context.Background(), newService(), s.Fixture)
			assert.NoError(t, err)
		})
	}
}

func TestLoad_MemberAsGuestFails(t *testing.T) {
	// GIVEN: A fixture registering a member as another member's guest
	fixture := `{
		"constants": {"min": "0", "max": "100"},
		"members": [{"ref": "a", "name": "A"}, {"ref": "b", "name": "B"}],
		"activities": [{"ref": "x", "in_days": 1, "description": "x", "priority": 1, "due": "10"}],
		"registrations": [{"ref": "r", "member": "a", "activity": "x", "guest": "b"}]
	}`

	// WHEN: Loading
	loaded, err := newFactory().Load(context.Background(), newService(), fixture)

	// THEN: The domain error survives the wrapping
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
	assert.Contains(t, err.Error(), `registration "r"`)
	assert.Len(t, loaded.Members, 2, "entries before the failure stay created")
}

func TestLookupScenario(t *testing.T) {
	s, ok := factory.LookupScenario("guest-discount")
	require.True(t, ok)
	assert.Equal(t, "Guest Discount", s.Name)

	_, ok = factory.LookupScenario("nope")
	assert.False(t, ok)
}
