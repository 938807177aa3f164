// Package alert delivers error-state notifications for monitored entities.
// Alerts fan out to email over SMTP and to Slack, Teams, or generic HTTP
// webhook targets; a failing channel never blocks the others.
package alert
