package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripsync/internal/clock"
	"github.com/tripnest/tripsync/pkg/models"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestIsValid(t *testing.T) {
	ttl := 10 * time.Minute

	testCases := []struct {
		name      string
		fetchedAt time.Time
		now       time.Time
		want      bool
	}{
		{"just fetched", t0, t0, true},
		{"before expiry", t0, t0.Add(9 * time.Minute), true},
		{"one nanosecond before expiry", t0, t0.Add(ttl - 1), true},
		{"at expiry", t0, t0.Add(ttl), false},
		{"after expiry", t0, t0.Add(11 * time.Minute), false},
		{"never fetched", time.Time{}, t0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValid(tc.fetchedAt, ttl, tc.now))
		})
	}

	assert.False(t, IsValid(t0, 0, t0), "zero ttl disables caching")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "booking_b1", EntityKey(models.KindBooking, "b1"))
	assert.Equal(t, "search_city=Lisbon&guests=2_1",
		SearchKey(map[string]string{"guests": "2", "city": "Lisbon"}, 1))
	assert.Equal(t,
		SearchKey(map[string]string{"a": "1", "b": "2"}, 3),
		SearchKey(map[string]string{"b": "2", "a": "1"}, 3),
		"keys must not depend on map iteration order")
	assert.Equal(t, "booking_list_status=confirmed_2",
		ListKey(models.KindBooking, map[string]string{"status": "confirmed"}, 2))
	assert.Equal(t, "property_list__1", ListKey(models.KindProperty, nil, 1))
}

func TestTTLTable(t *testing.T) {
	ttls := DefaultTTLs()
	assert.Equal(t, 10*time.Minute, ttls.For(string(models.KindBooking)))
	assert.Equal(t, 240*time.Minute, ttls.For(ResourceCategories))
	assert.Equal(t, DefaultTTL, ttls.For("unknown"))
}

func TestEntries(t *testing.T) {
	c := clock.Fake(t0)
	e := NewEntries(c)

	e.Touch("booking_b1")
	e.Touch("booking_b2")
	e.Touch("booking_list__1")
	e.Touch("property_p1")
	require.Equal(t, 4, e.Len())

	c.Advance(9 * time.Minute)
	assert.True(t, e.Valid("booking_b1", 10*time.Minute))
	c.Advance(2 * time.Minute)
	assert.False(t, e.Valid("booking_b1", 10*time.Minute))
	assert.False(t, e.Valid("missing", time.Hour))

	assert.Equal(t, 3, e.Invalidate("booking_"))
	assert.Equal(t, 1, e.Len())
	assert.Equal(t, 0, e.Invalidate("booking_"))

	assert.True(t, e.Delete("property_p1"))
	assert.False(t, e.Delete("property_p1"))
}

func TestEntriesSnapshotRestore(t *testing.T) {
	c := clock.Fake(t0)
	e := NewEntries(c)
	e.Touch("b")
	c.Advance(time.Minute)
	e.Touch("a")

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)

	restored := NewEntries(c)
	restored.Touch("a")
	restored.Restore([]Entry{{Key: "a", FetchedAt: t0.Add(-time.Hour)}, {Key: "b", FetchedAt: t0}})

	got, ok := restored.Get("a")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), got.FetchedAt, "newer local timestamp wins")
	got, ok = restored.Get("b")
	require.True(t, ok)
	assert.Equal(t, t0, got.FetchedAt)

	e.Clear()
	assert.Equal(t, 0, e.Len())
}
