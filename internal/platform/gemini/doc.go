// Package gemini implements generation.Generator on Google's Gemini API
// through the google.golang.org/genai client.
//
// The generator performs a single GenerateContent call per request and maps
// the outcome onto the generation sentinels:
//   - rate limiting (429) and server errors (5xx) become ErrTransientFailure
//   - safety finishes and blocked prompts become ErrContentBlocked
//   - empty candidates become ErrInvalidResponse
//   - other API errors become ErrGenerationFailed
//
// Retries are left to generation.Retrying.
package gemini
