//go:build unix

package term

import (
	"os"
	"time"
	"unicode/utf8"
)

// reader reads terminal escape sequences and decodes them into events.
type reader struct {
	fr fileReader
}

func newReader(f *os.File) (*reader, error) {
	fr, err := newFileReader(f)
	if err != nil {
		return nil, err
	}
	return &reader{fr}, nil
}

func (rd *reader) ReadEvent() (Event, error) {
	return readEvent(rd.fr)
}

func (rd *reader) Close() {
	rd.fr.Stop()
	rd.fr.Close()
}

// Used by readRune in readEvent to signal end of current sequence.
const runeEndOfSeq rune = -1

// Timeout for bytes in escape sequences. Modern terminal emulators send escape
// sequences very fast, so 10ms is more than sufficient. SSH connections on a
// slow link might be problematic though.
var keySeqTimeout = 10 * time.Millisecond

func readEvent(rd byteReaderWithTimeout) (event Event, err error) {
	var r rune
	r, err = readRune(rd, -1)
	if err != nil {
		return
	}
	if r != 0x1b {
		return KeyEvent(r), nil
	}

	currentSeq := string(r)
	// Attempts to read a rune within a timeout of keySeqTimeout. It returns
	// runeEndOfSeq if there is any error; the caller should terminate the
	// current sequence when it sees that value.
	readRune := func() rune {
		r, e := readRune(rd, keySeqTimeout)
		if e != nil {
			return runeEndOfSeq
		}
		currentSeq += string(r)
		return r
	}
	badSeq := func(msg string) {
		err = seqError{msg, currentSeq}
	}

	r2 := readRune()
	switch r2 {
	case runeEndOfSeq:
		// Nothing follows. Taken as a lone Escape.
		return KeyEvent(0x1b), nil
	case '[':
		// CSI sequence: numerical arguments separated by semicolons, possibly
		// after a private-mode starter, ending in a non-numeric rune.
		r = readRune()
		var starter rune
		if r == '<' || r == '?' || r == '>' {
			starter = r
			r = readRune()
		}
		var nums []int
	CSISeq:
		for {
			switch {
			case r == ';':
				nums = append(nums, 0)
			case '0' <= r && r <= '9':
				if len(nums) == 0 {
					nums = append(nums, 0)
				}
				cur := len(nums) - 1
				nums[cur] = nums[cur]*10 + int(r-'0')
			case r == runeEndOfSeq:
				badSeq("incomplete CSI")
				return
			default: // Treat as a terminator.
				break CSISeq
			}
			r = readRune()
		}
		if starter == 0 && r == 'R' {
			// Cursor position report.
			if len(nums) != 2 {
				badSeq("bad CPR")
				return
			}
			return CursorPosition{nums[0], nums[1]}, nil
		}
		return SeqEvent(currentSeq), nil
	case 'O':
		// G3 style function key sequence: one more rune, or none for Alt-O.
		readRune()
		return SeqEvent(currentSeq), nil
	default:
		// Alt-modified key.
		return SeqEvent(currentSeq), nil
	}
}

type byteReaderWithTimeout interface {
	// ReadByteWithTimeout reads a single byte with a timeout. A negative
	// timeout means no timeout.
	ReadByteWithTimeout(timeout time.Duration) (byte, error)
}

// Reads a rune from the reader. The timeout applies to the first byte; a
// negative value means no timeout.
func readRune(rd byteReaderWithTimeout, timeout time.Duration) (rune, error) {
	leader, err := rd.ReadByteWithTimeout(timeout)
	if err != nil {
		return utf8.RuneError, err
	}
	var r rune
	pending := 0
	switch {
	case leader>>7 == 0:
		r = rune(leader)
	case leader>>5 == 0x6:
		r = rune(leader & 0x1f)
		pending = 1
	case leader>>4 == 0xe:
		r = rune(leader & 0xf)
		pending = 2
	case leader>>3 == 0x1e:
		r = rune(leader & 0x7)
		pending = 3
	}
	for i := 0; i < pending; i++ {
		b, err := rd.ReadByteWithTimeout(keySeqTimeout)
		if err != nil {
			return utf8.RuneError, err
		}
		r = r<<6 + rune(b&0x3f)
	}
	return r, nil
}
