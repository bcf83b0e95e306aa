package ports

import "context"

// Translator is a remote translation backend.
type Translator interface {
	// Name identifies the backend in logs.
	Name() string

	// Translate converts text between two language codes.
	Translate(ctx context.Context, text, from, to string) (string, error)
}
