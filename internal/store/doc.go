// Package store defines the persistence interfaces for users and reports and
// the helpers shared by their SQL implementations. Task persistence is defined
// by task.Store, next to the state machine it guards.
package store
