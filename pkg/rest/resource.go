package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tripnest/tripsync/pkg/models"
	"github.com/tripnest/tripsync/pkg/store"
)

// Resource maps a store's reads and writes onto a REST collection.
type Resource[E models.Entity] struct {
	Client *Client

	// Path is the collection path, e.g. "/bookings".
	Path string

	// SearchPath serves queries with Search set. Defaults to Path+"/search".
	SearchPath string
}

var _ store.Source[models.Booking] = (*Resource[models.Booking])(nil)

func NewResource[E models.Entity](c *Client, path string) *Resource[E] {
	return &Resource[E]{Client: c, Path: path, SearchPath: path + "/search"}
}

func (r *Resource[E]) Get(ctx context.Context, id string) (E, error) {
	var out E
	_, err := r.Client.Do(ctx, http.MethodGet, r.Path+"/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (r *Resource[E]) List(ctx context.Context, q store.Query) (store.Page[E], error) {
	values := url.Values{}
	for k, v := range q.Params {
		values.Set(k, v)
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}

	path := r.Path
	if q.Search {
		path = r.SearchPath
	}

	var items []E
	res, err := r.Client.Do(ctx, http.MethodGet, path, values, nil, &items)
	if err != nil {
		return store.Page[E]{}, err
	}
	return store.Page[E]{Items: items, Total: res.Total, HasMore: res.HasMore}, nil
}

func (r *Resource[E]) Update(ctx context.Context, id string, patch models.Patch) (E, error) {
	var out E
	_, err := r.Client.Do(ctx, http.MethodPatch, r.Path+"/"+url.PathEscape(id), nil, patch, &out)
	return out, err
}

// Post sends body to a sub-path of entity id and decodes the updated entity.
func (r *Resource[E]) Post(ctx context.Context, id, action string, body any) (E, error) {
	var out E
	_, err := r.Client.Do(ctx, http.MethodPost, r.Path+"/"+url.PathEscape(id)+"/"+action, nil, body, &out)
	return out, err
}

// Bookings adds booking-specific calls to the generic resource.
type Bookings struct {
	*Resource[models.Booking]
}

func NewBookings(c *Client) *Bookings {
	return &Bookings{Resource: NewResource[models.Booking](c, "/bookings")}
}

// Cancel returns a call that cancels booking id, for use with store.Mutate.
func (b *Bookings) Cancel(id, reason string) store.CallFunc[models.Booking] {
	return func(ctx context.Context) (models.Booking, error) {
		return b.Post(ctx, id, "cancel", map[string]string{"reason": reason})
	}
}

type Notifications struct {
	*Resource[models.Notification]
}

func NewNotifications(c *Client) *Notifications {
	return &Notifications{Resource: NewResource[models.Notification](c, "/notifications")}
}

// MarkRead returns a call that marks notification id read, for use with
// store.NotificationStore.MarkRead.
func (n *Notifications) MarkRead(id string) store.CallFunc[models.Notification] {
	return func(ctx context.Context) (models.Notification, error) {
		return n.Post(ctx, id, "read", nil)
	}
}

// UnreadCount asks the server for the total number of unread notifications.
func (n *Notifications) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	_, err := n.Client.Do(ctx, http.MethodGet, n.Path+"/unread-count", nil, nil, &out)
	return out.Count, err
}
