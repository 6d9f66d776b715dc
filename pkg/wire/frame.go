package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Protocol is the start-line token of every frame.
const Protocol = "MOO/1"

// Header names with special meaning.
const (
	HeaderRequestID     = "Request-Id"
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
)

// Framing limits.
const (
	// MaxHeaderLineSize is the longest accepted header line, including the
	// line terminator.
	MaxHeaderLineSize = 8192

	// MaxHeaderLines bounds the number of header lines in one frame.
	MaxHeaderLines = 64

	// DefaultMaxBodySize is the default maximum body size (8 MiB).
	DefaultMaxBodySize = 8 << 20
)

// Framing errors.
var (
	// ErrMalformedFrame indicates a header block that cannot be parsed.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMessageTooLarge indicates a body above the configured limit.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrFrameTruncated indicates the stream ended in the middle of a frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

var mapStringAnyType = reflect.TypeOf(map[string]any(nil))

// EncodeFrame renders m as a complete frame.
func EncodeFrame(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(64 + len(m.Name) + len(m.Body.Data))

	fmt.Fprintf(&buf, "%s %s %s\n", Protocol, m.Verb, m.Name)
	fmt.Fprintf(&buf, "%s: %d\n", HeaderRequestID, m.RequestID)
	if len(m.Headers) > 0 {
		keys := make([]string, 0, len(m.Headers))
		for k := range m.Headers {
			if !isReservedHeader(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "%s: %s\n", k, m.Headers[k])
		}
	}
	if !m.Body.IsEmpty() {
		if m.Body.ContentType != "" {
			fmt.Fprintf(&buf, "%s: %s\n", HeaderContentType, m.Body.ContentType)
		}
		fmt.Fprintf(&buf, "%s: %d\n", HeaderContentLength, len(m.Body.Data))
	}
	buf.WriteByte('\n')
	buf.Write(m.Body.Data)

	return buf.Bytes(), nil
}

// DecodeFrame parses one complete frame held in data. Trailing bytes after
// the body are rejected.
func DecodeFrame(data []byte, maxBodySize int) (*Message, error) {
	r := bytes.NewReader(data)
	br := bufio.NewReaderSize(r, MaxHeaderLineSize)
	msg, err := ReadFrame(br, maxBodySize)
	if err != nil {
		if err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}
	if rest := br.Buffered() + r.Len(); rest > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, rest)
	}
	return msg, nil
}

// ReadFrame reads the next frame from br. It returns io.EOF only when the
// stream ends cleanly on a frame boundary. Header lines longer than
// MaxHeaderLineSize are rejected whatever the buffer size of br.
func ReadFrame(br *bufio.Reader, maxBodySize int) (*Message, error) {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	line, err := readLine(br)
	if err != nil {
		if err == io.EOF && line == "" {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}

	msg, err := parseStartLine(line)
	if err != nil {
		return nil, err
	}

	haveID := false
	contentLength := 0
	for i := 0; ; i++ {
		if i > MaxHeaderLines {
			return nil, fmt.Errorf("%w: too many header lines", ErrMalformedFrame)
		}
		line, err := readLine(br)
		if err != nil {
			return nil, truncated(err)
		}
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header without colon: %q", ErrMalformedFrame, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(key, HeaderRequestID):
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id < 0 {
				return nil, fmt.Errorf("%w: bad request id %q", ErrMalformedFrame, value)
			}
			msg.RequestID = id
			haveID = true
		case strings.EqualFold(key, HeaderContentType):
			msg.Body.ContentType = value
		case strings.EqualFold(key, HeaderContentLength):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad content length %q", ErrMalformedFrame, value)
			}
			contentLength = n
		default:
			if msg.Headers == nil {
				msg.Headers = make(map[string]string)
			}
			msg.Headers[key] = value
		}
	}

	if !haveID {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedFrame, HeaderRequestID)
	}
	if contentLength > maxBodySize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, contentLength, maxBodySize)
	}

	if contentLength > 0 {
		msg.Body.Data = make([]byte, contentLength)
		if _, err := io.ReadFull(br, msg.Body.Data); err != nil {
			return nil, truncated(err)
		}
	}

	return msg, nil
}

// parseStartLine parses "MOO/1 VERB name".
func parseStartLine(line string) (*Message, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: bad start line %q", ErrMalformedFrame, line)
	}
	if fields[0] != Protocol {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrMalformedFrame, fields[0])
	}
	verb, err := ParseVerb(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &Message{Verb: verb, Name: fields[2]}, nil
}

// readLine reads one header line and strips the terminator.
func readLine(br *bufio.Reader) (string, error) {
	raw, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("%w: header line too long", ErrMalformedFrame)
		}
		return string(raw), err
	}
	if len(raw) > MaxHeaderLineSize {
		return "", fmt.Errorf("%w: header line too long", ErrMalformedFrame)
	}
	line := strings.TrimRight(string(raw), "\r\n")
	return line, nil
}

// truncated maps end-of-stream errors inside a frame to ErrFrameTruncated.
func truncated(err error) error {
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFrameTruncated
	}
	return err
}

func isReservedHeader(k string) bool {
	return strings.EqualFold(k, HeaderRequestID) ||
		strings.EqualFold(k, HeaderContentType) ||
		strings.EqualFold(k, HeaderContentLength)
}
