package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Record marking: every fragment starts with a 4-byte big-endian header.
//
//   - Bit 31: last fragment flag (1 = last, 0 = more fragments follow)
//   - Bits 0-30: fragment length in bytes
//
// A message is the concatenation of its fragments up to and including the
// one with the last flag set.
const (
	lastFragmentFlag = 0x80000000
	fragmentLenMask  = 0x7FFFFFFF

	// MaxFragmentSize is the largest length a single header can carry.
	MaxFragmentSize = fragmentLenMask
)

// ErrMessageTooLarge is returned when a message exceeds the configured limit.
// The stream cannot be resynchronised afterwards; the connection must close.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

type fragmentHeader struct {
	IsLast bool
	Length uint32
}

func readFragmentHeader(r io.Reader) (fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fragmentHeader{}, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return fragmentHeader{
		IsLast: header&lastFragmentFlag != 0,
		Length: header & fragmentLenMask,
	}, nil
}

// ReadMessage reads one record-marked message, reassembling fragments.
//
// maxSize bounds the total message length; 0 means unbounded. io.EOF is
// returned unchanged when the stream ends cleanly before a header.
func ReadMessage(r io.Reader, maxSize int) ([]byte, error) {
	var message []byte
	for first := true; ; first = false {
		header, err := readFragmentHeader(r)
		if err != nil {
			if !first && errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		total := len(message) + int(header.Length)
		if maxSize > 0 && total > maxSize {
			return nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, total, maxSize)
		}

		start := len(message)
		message = append(message, make([]byte, header.Length)...)
		if _, err := io.ReadFull(r, message[start:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment: %w", err)
		}

		if header.IsLast {
			return message, nil
		}
	}
}

// WriteMessage writes data as a single last fragment.
func WriteMessage(w io.Writer, data []byte) error {
	return WriteFragments(w, data, MaxFragmentSize)
}

// WriteFragments writes data split into fragments of at most fragmentSize
// bytes. An empty message is sent as one empty last fragment.
func WriteFragments(w io.Writer, data []byte, fragmentSize int) error {
	if fragmentSize <= 0 || fragmentSize > MaxFragmentSize {
		fragmentSize = MaxFragmentSize
	}

	for {
		n := min(len(data), fragmentSize)
		header := uint32(n)
		if n == len(data) {
			header |= lastFragmentFlag
		}

		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], header)
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("write fragment header: %w", err)
		}
		if _, err := w.Write(data[:n]); err != nil {
			return fmt.Errorf("write fragment: %w", err)
		}

		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}
