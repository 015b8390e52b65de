// Package cache decides whether previously fetched data may be reused and
// derives the keys it is tracked under.
package cache

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tripnest/tripsync/pkg/models"
)

// DefaultTTL applies to resources missing from a TTLTable.
const DefaultTTL = 15 * time.Minute

// IsValid reports whether data fetched at fetchedAt may still be used at now.
// A zero fetchedAt or non-positive ttl is never valid.
func IsValid(fetchedAt time.Time, ttl time.Duration, now time.Time) bool {
	if fetchedAt.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(fetchedAt) < ttl
}

// Resource names used in TTL tables beyond the entity kinds themselves.
const (
	ResourceBookingList    = "booking_list"
	ResourceSearch         = "search"
	ResourceCategories     = "categories"
	ResourceOperatingHours = "operating_hours"
)

// TTLTable maps an entity kind or resource name to its time-to-live.
type TTLTable map[string]time.Duration

// DefaultTTLs is tuned so volatile lists expire within minutes and reference
// data lasts hours.
func DefaultTTLs() TTLTable {
	return TTLTable{
		string(models.KindBooking):      10 * time.Minute,
		string(models.KindNotification): 5 * time.Minute,
		string(models.KindProperty):     30 * time.Minute,
		string(models.KindPOI):          60 * time.Minute,
		string(models.KindExperience):   30 * time.Minute,
		ResourceBookingList:             15 * time.Minute,
		ResourceSearch:                  15 * time.Minute,
		ResourceCategories:              240 * time.Minute,
		ResourceOperatingHours:          120 * time.Minute,
	}
}

func (t TTLTable) For(resource string) time.Duration {
	if ttl, ok := t[resource]; ok {
		return ttl
	}
	return DefaultTTL
}

// Key joins parts with underscores.
func Key(parts ...string) string {
	return strings.Join(parts, "_")
}

// EntityKey is the key of a single record, e.g. "booking_b1".
func EntityKey(kind models.Kind, id string) string {
	return Key(string(kind), id)
}

// ListKey is the key of one page of a kind's list endpoint,
// e.g. "booking_list_status=confirmed_1".
func ListKey(kind models.Kind, params map[string]string, page int) string {
	return Key(string(kind), "list", SerializeParams(params), strconv.Itoa(page))
}

// SearchKey is the key of one page of search results,
// e.g. "search_city=Lisbon&guests=2_1".
func SearchKey(filters map[string]string, page int) string {
	return Key(ResourceSearch, SerializeParams(filters), strconv.Itoa(page))
}

// SerializeParams renders params in sorted key order so equal queries map to
// equal keys.
func SerializeParams(params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}
