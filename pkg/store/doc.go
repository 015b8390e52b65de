// Package store keeps one authoritative copy of each synchronized entity,
// serves reads from cache while the entry is fresh, and applies writes
// optimistically.
//
// A Store holds two layers per id: the base entity last confirmed by the
// server, and a pending overlay of fields changed locally or pushed over the
// socket that the server has not yet confirmed. Get returns the base with the
// overlay applied.
//
// Mutate merges a patch into the overlay so readers see it immediately, runs
// the network call, and then either commits the server copy or restores the
// overlay fields it changed. The base entity is never modified by a failed
// call.
package store
