// Package segment splits text into bounded, sentence-aligned chunks for
// speech synthesis.
package segment

import (
	"errors"
	"strings"
	"unicode"
)

// Default size band, tuned for short TTS synthesis calls.
const (
	DefaultMinSize = 40
	DefaultMaxSize = 300
)

// ErrInvalidSizeBand is returned when MinSize/MaxSize are inconsistent.
var ErrInvalidSizeBand = errors.New("segment: invalid chunk size band")

// Chunk is a contiguous span of source text destined for one synthesis
// call. CharCount is the rune length of Text.
type Chunk struct {
	Text      string
	CharCount int
}

// Options configures a Chunker.
type Options struct {
	MinSize int // Chunks below this keep accumulating sentences
	MaxSize int // Chunks are force-closed at this size

	// ProtectedPatterns lists tokens whose internal punctuation must
	// never be treated as a sentence boundary ("U.S.", "Dr.").
	// Matching is case-sensitive substring matching around the
	// candidate boundary.
	ProtectedPatterns []string
}

// DefaultOptions returns the default size band and protected-pattern table.
func DefaultOptions() Options {
	return Options{
		MinSize:           DefaultMinSize,
		MaxSize:           DefaultMaxSize,
		ProtectedPatterns: DefaultProtectedPatterns(),
	}
}

// DefaultProtectedPatterns returns the built-in abbreviation table.
func DefaultProtectedPatterns() []string {
	return []string{
		"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "Sr.", "Jr.", "St.",
		"Ph.D.", "M.D.", "B.A.", "M.A.", "B.S.", "M.S.",
		"U.S.A.", "U.S.", "U.K.", "U.N.", "E.U.", "N.Y.", "L.A.",
		"e.g.", "i.e.", "etc.", "vs.", "cf.", "al.",
		"A.M.", "P.M.", "a.m.", "p.m.",
		"Inc.", "Ltd.", "Co.", "Corp.",
		"No.", "pp.", "Vol.", "Fig.",
	}
}

// Chunker splits text deterministically: the same input and options
// always produce the same chunk sequence.
type Chunker struct {
	opts Options
}

// NewChunker validates opts and returns a Chunker. Zero or missing
// fields fall back to defaults.
func NewChunker(opts Options) (*Chunker, error) {
	if opts.MinSize == 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.ProtectedPatterns == nil {
		opts.ProtectedPatterns = DefaultProtectedPatterns()
	}
	if opts.MinSize < 1 || opts.MaxSize < opts.MinSize {
		return nil, ErrInvalidSizeBand
	}
	return &Chunker{opts: opts}, nil
}

// Segment splits text into chunks. Every chunk except possibly the last
// has a rune count in [MinSize, MaxSize]; no chunk is empty, no chunk
// splits mid-word, and concatenating all chunk texts in order yields
// the whitespace-normalized input.
func (c *Chunker) Segment(text string) []Chunk {
	sentences := c.splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	cur := ""
	for _, s := range sentences {
		switch {
		case cur == "":
			cur = s
		case runeLen(cur)+1+runeLen(s) <= c.opts.MaxSize:
			cur += " " + s
		case runeLen(cur) >= c.opts.MinSize:
			chunks = append(chunks, newChunk(cur))
			cur = s
		default:
			// Under MinSize: keep accumulating and force-close at
			// MaxSize on a clause boundary if no sentence boundary
			// fits.
			cur += " " + s
		}
		for runeLen(cur) > c.opts.MaxSize {
			head, tail := c.forceSplit(cur)
			if tail == "" {
				break
			}
			chunks = append(chunks, newChunk(head))
			cur = tail
		}
	}
	if cur != "" {
		chunks = append(chunks, newChunk(cur))
	}
	return chunks
}

func newChunk(text string) Chunk {
	return Chunk{Text: text, CharCount: runeLen(text)}
}

func runeLen(s string) int {
	return len([]rune(s))
}

// splitSentences scans for sentence-ending punctuation followed by
// whitespace and a capital letter (or end of text), skipping boundaries
// inside protected tokens, decimal numbers, and ellipses.
func (c *Chunker) splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	last := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Collect runs of terminal punctuation ("?!", "...").
		end := i + 1
		for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
			end++
		}
		// Closing quotes and brackets belong to the sentence.
		for end < len(runes) && isClosing(runes[end]) {
			end++
		}
		if !c.isBoundary(runes, i, end) {
			i = end - 1
			continue
		}
		s := strings.TrimSpace(string(runes[last:end]))
		if s != "" {
			sentences = append(sentences, s)
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		last = end
		i = end - 1
	}

	if last < len(runes) {
		if s := strings.TrimSpace(string(runes[last:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// isClosing reports whether r is a closing quote or bracket that may
// trail sentence punctuation ("stop.") and still belong to the
// sentence.
func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

// isBoundary reports whether the punctuation at pos ends a sentence.
// end is the first position after the punctuation run and any closing
// quotes or brackets.
func (c *Chunker) isBoundary(runes []rune, pos, end int) bool {
	if c.isProtected(runes, pos) {
		return false
	}

	punct := runes[pos]

	// Decimal numbers: "3.14" never splits.
	if punct == '.' && pos > 0 && pos+1 < len(runes) &&
		unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
		return false
	}

	// Ellipsis mid-sentence: "wait... and then".
	if punct == '.' && pos+2 < len(runes) && runes[pos+1] == '.' && runes[pos+2] == '.' {
		return false
	}

	if end >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[end]) {
		return false
	}
	next := end
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]) {
		return true
	}
	// Exclamations and questions end sentences regardless of what
	// follows.
	return punct == '!' || punct == '?'
}

// isProtected reports whether the punctuation at pos falls inside an
// occurrence of a protected pattern.
func (c *Chunker) isProtected(runes []rune, pos int) bool {
	for _, pat := range c.opts.ProtectedPatterns {
		p := []rune(pat)
		if len(p) == 0 {
			continue
		}
		start := pos - len(p) + 1
		if start < 0 {
			start = 0
		}
		for o := start; o <= pos && o+len(p) <= len(runes); o++ {
			if string(runes[o:o+len(p)]) == pat {
				return true
			}
		}
	}
	return false
}

// Clause-level break tokens, tried in order when a chunk must be
// force-closed without a sentence boundary in range.
var clauseBreaks = []string{
	", and ", ", but ", ", or ", ", so ", ", yet ",
	"; ",
	", ",
}

// forceSplit closes an oversized accumulation at the best available
// clause boundary within MaxSize, falling back to the last whitespace.
// It never splits mid-word. When no split point exists the full text is
// returned as head with an empty tail.
func (c *Chunker) forceSplit(text string) (head, tail string) {
	runes := []rune(text)
	if len(runes) <= c.opts.MaxSize {
		return text, ""
	}
	window := string(runes[:c.opts.MaxSize])

	for _, brk := range clauseBreaks {
		if idx := strings.LastIndex(window, brk); idx > 0 {
			// Keep the comma or semicolon with the head.
			cut := idx + 1
			head = strings.TrimSpace(text[:cut])
			tail = strings.TrimSpace(text[cut:])
			if head != "" && tail != "" && runeLen(head) >= c.opts.MinSize {
				return head, tail
			}
		}
	}

	// Naive fallback: last whitespace inside the window.
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		head = strings.TrimSpace(text[:idx])
		tail = strings.TrimSpace(text[idx:])
		if head != "" && tail != "" {
			return head, tail
		}
	}

	// A single word longer than MaxSize; emit it whole rather than
	// split mid-word.
	return text, ""
}

// NormalizeWhitespace collapses all whitespace runs to single spaces
// and trims the ends. Reconstruction checks compare inputs and chunk
// concatenations in this form.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
