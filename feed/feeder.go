package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/segment"
)

// DefaultThreshold is how much buffered source text triggers a
// segmentation pass before the source is exhausted.
const DefaultThreshold = 4096

const readSize = 2048

// Chunk is an indexed text chunk. Indices are assigned once, in feed
// order, and never reused.
type Chunk struct {
	Index     uint
	Text      string
	CharCount int
}

// Feeder reads a source incrementally, segments accumulated text, and
// emits indexed chunks in order. It never requires the full source in
// memory: a trailing incomplete sentence is held back and re-segmented
// once more text arrives.
type Feeder struct {
	src       Source
	chunker   *segment.Chunker
	threshold int
	logger    *log.Logger

	mu        sync.Mutex
	nextIndex uint
	bytesRead int64
	totalSize int64
}

// NewFeeder creates a feeder over src. A threshold of 0 uses the
// default.
func NewFeeder(src Source, chunker *segment.Chunker, threshold int) *Feeder {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	f := &Feeder{
		src:       src,
		chunker:   chunker,
		threshold: threshold,
		logger:    log.Default().With("component", "feeder", "source", src.SourceID()),
	}
	if s, ok := src.(Sizer); ok {
		f.totalSize = s.Len()
	}
	return f
}

// Run reads until the source is exhausted or ctx is cancelled, calling
// emit for every chunk in index order. A source read error stops the
// run and is returned; chunks already emitted stay downstream.
func (f *Feeder) Run(ctx context.Context, emit func(context.Context, Chunk) error) error {
	var pending strings.Builder
	buf := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := f.src.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			f.mu.Lock()
			f.bytesRead += int64(n)
			f.mu.Unlock()
		}

		eof := errors.Is(readErr, io.EOF)
		if readErr != nil && !eof {
			return fmt.Errorf("reading source %s: %w", f.src.SourceID(), readErr)
		}

		if pending.Len() >= f.threshold || (eof && pending.Len() > 0) {
			rest, err := f.flush(ctx, pending.String(), eof, emit)
			if err != nil {
				return err
			}
			pending.Reset()
			pending.WriteString(rest)
		}

		if eof {
			f.logger.Debug("source exhausted", "chunks", f.Emitted(), "bytes", f.bytesRead)
			return nil
		}
	}
}

// flush segments text and emits completed chunks. Unless the source is
// exhausted, the final chunk is held back as the new pending text so an
// incomplete trailing sentence can keep growing.
func (f *Feeder) flush(ctx context.Context, text string, final bool, emit func(context.Context, Chunk) error) (rest string, err error) {
	chunks := f.chunker.Segment(text)
	if len(chunks) == 0 {
		return "", nil
	}
	if !final {
		rest = chunks[len(chunks)-1].Text
		// The segmenter trims the chunk; when the read ended inside
		// whitespace that boundary must survive, or the next read's
		// bytes would glue onto the previous word.
		if r, _ := utf8.DecodeLastRuneInString(text); unicode.IsSpace(r) {
			rest += " "
		}
		chunks = chunks[:len(chunks)-1]
	}
	for _, c := range chunks {
		f.mu.Lock()
		idx := f.nextIndex
		f.nextIndex++
		f.mu.Unlock()

		chunk := Chunk{Index: idx, Text: c.Text, CharCount: c.CharCount}
		f.logger.Debug("chunk ready", "index", idx, "chars", c.CharCount)
		if err := emit(ctx, chunk); err != nil {
			return "", err
		}
	}
	return rest, nil
}

// Emitted returns how many chunks have been emitted so far.
func (f *Feeder) Emitted() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextIndex
}

// TotalEstimate returns a best-effort estimate of the total chunk
// count. It may grow as more source arrives; ok is false until enough
// has been read to extrapolate.
func (f *Feeder) TotalEstimate() (estimate uint, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextIndex == 0 {
		return 0, false
	}
	if f.totalSize <= 0 || f.bytesRead == 0 {
		return f.nextIndex, false
	}
	est := uint(float64(f.nextIndex) * float64(f.totalSize) / float64(f.bytesRead))
	if est < f.nextIndex {
		est = f.nextIndex
	}
	return est, true
}
