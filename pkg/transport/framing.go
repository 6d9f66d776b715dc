package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
)

// Framing constants.
const (
	// DefaultMaxMessageSize is the default maximum body size (8 MiB).
	DefaultMaxMessageSize = wire.DefaultMaxBodySize

	// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
	// Larger frames are truncated in log events to avoid excessive memory usage.
	MaxLogFrameDataSize = 4096

	// readBufferSize holds exactly the longest header line.
	readBufferSize = wire.MaxHeaderLineSize
)

// FrameWriter writes MOO/1 frames to an underlying writer.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteMessage encodes m and writes it as one frame.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteMessage(m *wire.Message) error {
	data, err := wire.EncodeFrame(m)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	// A single Write keeps frames from interleaving on the stream.
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.connID, data, log.DirectionOut))
	}
	return nil
}

// FrameReader reads MOO/1 frames from an underlying reader.
// Frame boundaries need not line up with read boundaries.
type FrameReader struct {
	br          *bufio.Reader
	maxBodySize int

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom max body size.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameReader{
		br:          bufio.NewReaderSize(r, readBufferSize),
		maxBodySize: maxSize,
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadMessage reads the next frame. It returns io.EOF when the peer closed
// the stream between frames and wire.ErrFrameTruncated when it closed it
// mid-frame.
func (fr *FrameReader) ReadMessage() (*wire.Message, error) {
	msg, err := wire.ReadFrame(fr.br, fr.maxBodySize)
	if err != nil {
		return nil, err
	}

	if fr.logger != nil {
		// The header block is re-rendered; the bytes match what was read
		// up to header order and line endings.
		if data, err := wire.EncodeFrame(msg); err == nil {
			fr.logger.Log(frameEvent(fr.connID, data, log.DirectionIn))
		}
	}
	return msg, nil
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a new framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer with a custom max body size.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize int) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// frameEvent creates a transport-layer log event for a frame.
func frameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}
