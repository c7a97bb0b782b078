// Package auth issues and validates the HS256 bearer tokens that identify
// task owners, and verifies bcrypt password hashes at login.
package auth
