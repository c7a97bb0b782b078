// Package ollama implements generation.Generator against a local or remote
// Ollama server using the github.com/ollama/ollama/api client. Requests are
// sent non-streaming; the generator also lists installed models.
package ollama
