// Package monitor drives the polling cycle: observe every entity, publish
// snapshots, and fire debounced alerts on transitions into the error state.
package monitor
