package stream

import (
	"bufio"
	"io"
	"strings"
)

const (
	initialBufferSize = 64 * 1024
	maxFrameLineSize  = 1024 * 1024
)

// Frame is one blank-line terminated block of a server-sent-event stream.
type Frame struct {
	Name string
	Data []string
	// Lines holds the block as received, comments included.
	Lines []string
}

func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Payload joins the data lines the way an event source does.
func (f Frame) Payload() string {
	return strings.TrimSpace(strings.Join(f.Data, "\n"))
}

// FrameReader splits a stream into frames without interpreting payloads.
type FrameReader struct {
	scanner *bufio.Scanner
	err     error
}

func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxFrameLineSize)
	return &FrameReader{scanner: scanner}
}

// Next returns the next frame with at least one line. A trailing frame
// without its terminating blank line is still returned; after it Next
// reports io.EOF or the read error.
func (fr *FrameReader) Next() (Frame, error) {
	if fr.err != nil {
		return Frame{}, fr.err
	}
	var current Frame
	for fr.scanner.Scan() {
		line := strings.TrimRight(fr.scanner.Text(), "\r")
		if line == "" {
			if len(current.Lines) == 0 {
				continue
			}
			return current, nil
		}
		current.Lines = append(current.Lines, line)
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			current.Data = append(current.Data, value)
		case "event":
			current.Name = strings.TrimSpace(value)
		}
	}
	if err := fr.scanner.Err(); err != nil {
		fr.err = err
	} else {
		fr.err = io.EOF
	}
	if len(current.Lines) > 0 {
		return current, nil
	}
	return Frame{}, fr.err
}
