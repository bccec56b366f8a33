package wire

import (
	"bufio"
	"fmt"
	"io"
)

// Scanner reads zero-delimited COBS frames off a stream, the Go equivalent
// of the original firmware's read_until(0) loop. Each call to Next blocks
// until a full frame (or an error) is available.
type Scanner struct {
	r   *bufio.Reader
	max int
}

// NewScanner wraps r. maxFrame bounds how large an encoded frame (including
// the trailing delimiter) may be before it's rejected as corrupt; pass 0 to
// use MaxFrameSize's COBS-expanded bound.
func NewScanner(r io.Reader, maxFrame int) *Scanner {
	if maxFrame <= 0 {
		maxFrame = MaxFrameSize + MaxFrameSize/254 + 2
	}
	return &Scanner{r: bufio.NewReaderSize(r, 4096), max: maxFrame}
}

// Next reads and decodes the next frame. io.EOF is returned verbatim when
// the peer closed the connection cleanly between frames.
func (s *Scanner) Next() (Msg, error) {
	line, err := s.r.ReadBytes(0)
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return Msg{}, io.EOF
		}
		return Msg{}, fmt.Errorf("wire: read frame: %w", err)
	}
	if len(line) > s.max {
		return Msg{}, ErrCorruptEncoding
	}
	// strip the trailing zero delimiter ReadBytes includes.
	return Decode(line[:len(line)-1])
}

// WriteMsg encodes and writes one frame to w.
func WriteMsg(w io.Writer, m Msg) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
