package vcli

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// ReadResponse reads and parses a single response from r.
// Response format: <status> <length>\n<body>\n
//
// A non-200 status is returned as a regular Response. Go errors indicate
// that the stream is unusable:
//   - ConnectionError: read failed (peer closed, deadline exceeded)
//   - ParseError: malformed header or body terminator
func ReadResponse(r *bufio.Reader) (*Response, error) {
	status, length, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	body, err := ReadBody(r, length)
	if err != nil {
		return nil, err
	}

	return &Response{Status: status, Body: body}, nil
}

// ReadHeader reads the "<status> <length>" header line.
// The daemon pads both fields with spaces; any run of blanks is accepted as a
// separator and trailing blanks are ignored.
func ReadHeader(r *bufio.Reader) (Status, int, error) {
	line, err := ReadLine(r)
	if err != nil {
		return 0, 0, err
	}

	if len(line) > MaxHeaderLength {
		return 0, 0, &ParseError{Message: "header line too long"}
	}

	fields := bytes.Fields(line)
	if len(fields) != 2 {
		return 0, 0, &ParseError{Message: "malformed header line: " + strconv.Quote(string(line))}
	}

	status, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return 0, 0, &ParseError{Message: "invalid status in header", Err: err}
	}
	if status < 100 || status > 999 {
		return 0, 0, &ParseError{Message: "status out of range: " + string(fields[0])}
	}

	length, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0, 0, &ParseError{Message: "invalid length in header", Err: err}
	}
	if length < 0 {
		return 0, 0, &ParseError{Message: "negative length in header"}
	}
	if length > MaxBodyLength {
		return 0, 0, &ParseError{Message: "length exceeds maximum body size"}
	}

	return Status(status), length, nil
}

// ReadBody reads exactly length bytes of body plus the trailing newline,
// and returns the body without the newline.
func ReadBody(r *bufio.Reader, length int) ([]byte, error) {
	// Read body + newline together in a single read
	data := make([]byte, length+1)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	if data[length] != '\n' {
		return nil, &ParseError{Message: "invalid body terminator"}
	}

	return data[:length], nil
}

// ReadLine reads up to and including the next newline and returns the line
// without its terminator. Any error, including a peer closing mid-line, is a
// ConnectionError.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Line exceeds buffer, fall back to ReadBytes (allocates)
		var rest []byte
		line = append([]byte(nil), line...)
		rest, err = r.ReadBytes('\n')
		line = append(line, rest...)
	}
	if err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	line = bytes.TrimSuffix(line, []byte(Newline))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}
