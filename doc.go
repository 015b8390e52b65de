// The [tripsync] package keeps travel booking data in sync with a server.
//
// # Stores
//
// Every entity kind (bookings, notifications, properties, POIs and
// experiences) lives in its own [store.Store]. Reads are served from memory
// while the cache entry for the requested key is younger than the kind's
// TTL; otherwise the store calls the REST API. Writes are optimistic: the
// change is visible immediately and is reverted if the server rejects it.
//
// # Push Connection
//
// [Client.Connect] opens a WebSocket to the push endpoint and subscribes to
// the user's channels. The [connection.Manager] sends heartbeats and
// reconnects with exponential backoff after an abnormal close. Pushed
// messages go through the [router.Router], which publishes domain events on
// the [events.Bus]. The stores subscribe to those events, so a pushed booking
// status shows up in [Client.Bookings] without a refetch, and a pushed
// property change invalidates the cached property.
//
// # Toasts
//
// User-facing notices (connection lost, booking confirmed, retries
// exhausted) are published as [events.ToastRequested]. Pass a
// [toast.Surface] with [WithToasts] to display them.
//
// # Snapshots
//
// With [WithSnapshots] the client can save its stores to a
// [snapshot.FileBackend] or a [snapshot.PostgresBackend] and start warm on
// the next run.
//
// [store.Store]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/store#Store
// [connection.Manager]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/connection#Manager
// [router.Router]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/router#Router
// [events.Bus]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/events#Bus
// [events.ToastRequested]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/events#ToastRequested
// [toast.Surface]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/toast#Surface
// [snapshot.FileBackend]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/snapshot#FileBackend
// [snapshot.PostgresBackend]: https://pkg.go.dev/github.com/tripnest/tripsync/pkg/snapshot#PostgresBackend
package tripsync
