// Package generation defines the boundary between the analysis pipeline and
// the language model services it calls. A Generator turns one prompt into one
// completion; provider packages (Gemini, Ollama) implement it, and Retrying
// wraps any of them with exponential backoff for transient failures.
//
// All provider failures are expressed with the sentinel errors in errors.go so
// callers can classify them without knowing which provider produced them.
package generation
