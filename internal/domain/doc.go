// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (token.go, favorite.go, session.go, twitch.go, ...)
// hold shared types and the contracts the app layer consumes. No implementation
// code lives here.
package domain
