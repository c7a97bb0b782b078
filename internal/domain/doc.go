// Package domain contains the persisted entities shared by the stores and the
// HTTP layer: registered users and the analysis reports produced for them.
package domain
