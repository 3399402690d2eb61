package bigram

import (
	"bufio"
	"io"
	"strings"
)

// Tokenize lowercases corpus and splits it on whitespace. Runs of whitespace
// never produce empty tokens.
func Tokenize(corpus string) []string {
	return strings.Fields(strings.ToLower(corpus))
}

// Tokenizer splits a stream of text into tokens. It lets the Store train from
// any io.Reader without holding the whole corpus in memory.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
}

// StreamTokenizer is a stateful tokenizer that returns one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (string, error)
}

// WhitespaceTokenizer is the default Tokenizer. It produces the same token
// sequence as Tokenize.
type WhitespaceTokenizer struct {
	maxTokenSize int
}

// Option configures a WhitespaceTokenizer.
type Option func(*WhitespaceTokenizer)

// WithMaxTokenSize sets the largest token, in bytes, the stream will accept.
// Longer tokens make Next fail with bufio.ErrTooLong.
// Default: bufio.MaxScanTokenSize
func WithMaxTokenSize(n int) Option {
	return func(t *WhitespaceTokenizer) {
		t.maxTokenSize = n
	}
}

// NewWhitespaceTokenizer creates a tokenizer with default settings, which can
// be overridden by providing one or more Option functions.
func NewWhitespaceTokenizer(opts ...Option) *WhitespaceTokenizer {
	t := &WhitespaceTokenizer{
		maxTokenSize: bufio.MaxScanTokenSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewStream returns the stream processor.
func (t *WhitespaceTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	// The scanner limit is the larger of max and the initial capacity.
	initial := min(4096, t.maxTokenSize)
	scanner.Buffer(make([]byte, 0, initial), t.maxTokenSize)
	scanner.Split(bufio.ScanWords)
	return &whitespaceStream{scanner: scanner}
}

type whitespaceStream struct {
	scanner *bufio.Scanner
}

// Next returns the next lowercased token, or io.EOF once the stream is
// exhausted. Any other error comes from the underlying reader.
func (s *whitespaceStream) Next() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.ToLower(s.scanner.Text()), nil
}
