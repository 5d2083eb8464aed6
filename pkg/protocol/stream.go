package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single encoded message, file contents included.
const MaxMessageSize = 128 * 1024 * 1024

// WriteMessage encodes m and writes it to w as one newline-terminated line.
// The line is written with a single Write call.
func WriteMessage(w io.Writer, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Kind(), err)
	}
	return nil
}

// NewScanner returns a line scanner sized for protocol messages.
func NewScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	return sc
}
