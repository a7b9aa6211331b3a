package agent

// TokenStream is a single-consumer, forward-only sequence of text chunks
// from one agent generation. Recv returns io.EOF when the generation ends.
// A logical token may span multiple chunks and vice versa.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Fallbacker is optionally implemented by streams that can supply a
// complete response text after a mid-stream failure.
type Fallbacker interface {
	FallbackText() string
}
