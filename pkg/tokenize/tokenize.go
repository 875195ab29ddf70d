// Package tokenize splits a streamed model answer into sentences that can be
// synthesized one at a time.
//
// Tokens arrive in arbitrary fragments ("Hel", "lo. How", " are you?"). The
// Tokenizer buffers them and emits a sentence once its terminator is followed
// by whitespace, so "3.5" or "e.g. this" are not split early. Sentences shorter
// than MinSentenceLen are merged with the next one to avoid choppy audio.
package tokenize

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config controls sentence boundaries.
type Config struct {
	// MinSentenceLen merges shorter sentences into the following one.
	MinSentenceLen int

	// MaxSentenceLen forces a cut at the last space once a sentence grows
	// past this many runes without a terminator.
	MaxSentenceLen int

	// Abbreviations are words (without the trailing period) that never end
	// a sentence. Compared case-insensitively.
	Abbreviations []string
}

// DefaultConfig returns defaults tuned for conversational speech.
func DefaultConfig() Config {
	return Config{
		MinSentenceLen: 20,
		MaxSentenceLen: 240,
		Abbreviations: []string{
			"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "vs",
			"etc", "e.g", "i.e", "approx", "no", "inc", "ltd",
		},
	}
}

// Tokenizer is a streaming sentence splitter. It is not safe for concurrent
// use; one Tokenizer serves one answer.
type Tokenizer struct {
	cfg    Config
	abbrev map[string]struct{}

	buf     strings.Builder
	pending string
}

// New creates a tokenizer. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Tokenizer {
	def := DefaultConfig()
	if cfg.MinSentenceLen < 0 {
		cfg.MinSentenceLen = 0
	}
	if cfg.MaxSentenceLen <= 0 {
		cfg.MaxSentenceLen = def.MaxSentenceLen
	}
	if cfg.Abbreviations == nil {
		cfg.Abbreviations = def.Abbreviations
	}

	abbrev := make(map[string]struct{}, len(cfg.Abbreviations))
	for _, a := range cfg.Abbreviations {
		abbrev[strings.ToLower(a)] = struct{}{}
	}
	return &Tokenizer{cfg: cfg, abbrev: abbrev}
}

// Push adds a fragment and returns any sentences it completed.
func (t *Tokenizer) Push(fragment string) []string {
	if fragment == "" {
		return nil
	}
	t.buf.WriteString(fragment)

	var out []string
	for {
		buf := t.buf.String()
		cut, rest := t.nextCut(buf)
		if cut < 0 {
			break
		}
		t.buf.Reset()
		t.buf.WriteString(buf[rest:])
		if s := t.merge(buf[:cut]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Flush returns whatever text remains, including a merged short sentence.
func (t *Tokenizer) Flush() []string {
	tail := strings.TrimSpace(t.buf.String())
	t.buf.Reset()

	s := joinSentence(t.pending, tail)
	t.pending = ""
	if s == "" {
		return nil
	}
	return []string{s}
}

// Run tokenizes fragments from in and writes sentences to out until in is
// closed or ctx ends. out is closed on return.
func (t *Tokenizer) Run(ctx context.Context, in <-chan string, out chan<- string) {
	defer close(out)

	send := func(sentences []string) bool {
		for _, s := range sentences {
			select {
			case out <- s:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frag, ok := <-in:
			if !ok {
				send(t.Flush())
				return
			}
			if !send(t.Push(frag)) {
				return
			}
		}
	}
}

// merge applies the minimum length, returning "" while text is held back.
func (t *Tokenizer) merge(sentence string) string {
	s := joinSentence(t.pending, strings.TrimSpace(sentence))
	if utf8.RuneCountInString(s) < t.cfg.MinSentenceLen {
		t.pending = s
		return ""
	}
	t.pending = ""
	return s
}

// nextCut finds the end of the first complete sentence in buf. It returns
// the sentence end and the start of the remainder, or -1 when no sentence
// is complete yet.
func (t *Tokenizer) nextCut(buf string) (int, int) {
	runes := 0
	lastSpace := -1
	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRuneInString(buf[i:])
		runes++
		end := i + size

		switch {
		case r == '\n':
			return i, end
		case isTerminator(r):
			// Swallow runs like "?!" or "...".
			for end < len(buf) {
				r2, sz2 := utf8.DecodeRuneInString(buf[end:])
				if !isTerminator(r2) && !isCloser(r2) {
					break
				}
				end += sz2
			}
			if end >= len(buf) {
				// Need the following rune to decide.
				return -1, -1
			}
			next, _ := utf8.DecodeRuneInString(buf[end:])
			if unicode.IsSpace(next) && !(r == '.' && t.isAbbreviation(buf[:i])) {
				return end, skipSpace(buf, end)
			}
		case unicode.IsSpace(r):
			lastSpace = i
		}

		if runes > t.cfg.MaxSentenceLen && lastSpace > 0 {
			return lastSpace, skipSpace(buf, lastSpace)
		}
		i += size
	}
	return -1, -1
}

// isAbbreviation reports whether the word ending at the end of s is an
// abbreviation or a single-letter initial.
func (t *Tokenizer) isAbbreviation(s string) bool {
	start := strings.LastIndexFunc(s, unicode.IsSpace) + 1
	word := strings.TrimLeft(s[start:], "(\"'")
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	_, ok := t.abbrev[strings.ToLower(word)]
	return ok
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func joinSentence(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// Split tokenizes a complete text in one call.
func Split(text string, cfg Config) []string {
	t := New(cfg)
	out := t.Push(text)
	return append(out, t.Flush()...)
}
