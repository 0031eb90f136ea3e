// Package app provides the application service layer.
//
// It holds the use cases: OAuth login and token refresh, favorites and
// settings, followed streams with their session ledger, streamer stats, and
// the notification poller. It depends on domain interfaces only.
package app
