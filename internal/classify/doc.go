// Package classify turns a dashboard markup fragment into a health verdict
// for one monitored entity.
package classify
