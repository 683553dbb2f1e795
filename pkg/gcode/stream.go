package gcode

import (
	"bufio"
	"io"
	"strings"
)

// LineBuffer splits arbitrary text chunks into complete lines, holding back
// a trailing partial line until the next chunk or Flush.
type LineBuffer struct {
	partial strings.Builder
}

// Feed appends text and returns the lines it completed.
func (b *LineBuffer) Feed(text string) []string {
	var lines []string
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			b.partial.WriteString(text)
			return lines
		}
		b.partial.WriteString(text[:idx])
		lines = append(lines, b.partial.String())
		b.partial.Reset()
		text = text[idx+1:]
	}
}

// Flush returns the held-back remainder as the final line. It always
// returns exactly one line, possibly empty, so that joining every returned
// line with "\n" reproduces the fed text.
func (b *LineBuffer) Flush() []string {
	last := b.partial.String()
	b.partial.Reset()
	return []string{last}
}

// Pending reports how many bytes are held back.
func (b *LineBuffer) Pending() int {
	return b.partial.Len()
}

const readBlockSize = 64 * 1024

// ScanChunks reads r and calls fn with batches of at most maxLines complete
// lines; the final batch includes the flushed remainder. It stops at the
// first error from r or fn.
func ScanChunks(r io.Reader, maxLines int, fn func(lines []string) error) error {
	if maxLines <= 0 {
		maxLines = 1
	}
	br := bufio.NewReaderSize(r, readBlockSize)
	buf := make([]byte, readBlockSize)
	var lb LineBuffer
	var batch []string

	emit := func(final bool) error {
		for len(batch) >= maxLines || (final && len(batch) > 0) {
			n := min(maxLines, len(batch))
			if err := fn(batch[:n]); err != nil {
				return err
			}
			batch = batch[n:]
		}
		return nil
	}

	for {
		n, err := br.Read(buf)
		if n > 0 {
			batch = append(batch, lb.Feed(string(buf[:n]))...)
			if emitErr := emit(false); emitErr != nil {
				return emitErr
			}
		}
		if err == io.EOF {
			batch = append(batch, lb.Flush()...)
			return emit(true)
		}
		if err != nil {
			return err
		}
	}
}
