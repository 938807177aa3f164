// Package state holds the last observed severity per entity. It is the
// source of truth for alert debouncing: the monitor loop compares every fresh
// verdict against it before deciding whether to notify.
package state
