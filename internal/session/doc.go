// Package session owns the authenticated, stateful dashboard session: the
// form login, the cookie jar, and per-map fragment retrieval. One Gateway
// holds exactly one session, and all fetches through it are serialized.
package session
