package safety

import (
	"bufio"
	"io"
	"strings"
)

// Prompter supplies one line of operator input.
type Prompter interface {
	ReadLine() (string, error)
}

// LineReader reads lines from an io.Reader such as stdin.
type LineReader struct {
	reader *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReader(r)}
}

// ReadLine blocks until a full line or EOF is read. The trailing line
// terminator is removed.
func (l *LineReader) ReadLine() (string, error) {
	line, err := l.reader.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

// Scripted replays fixed responses; it is used where no terminal exists.
type Scripted struct {
	Responses []string
	next      int
}

// ReadLine returns the next scripted response or io.EOF once exhausted.
func (s *Scripted) ReadLine() (string, error) {
	if s.next >= len(s.Responses) {
		return "", io.EOF
	}
	response := s.Responses[s.next]
	s.next++
	return response, nil
}
