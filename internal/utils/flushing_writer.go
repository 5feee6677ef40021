package utils

import (
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

// FlushingWriter makes every write visible immediately by flushing buffered
// writers after each write. Concurrent writes are serialized so progress lines
// never interleave.
type FlushingWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFlushingWriter wraps writer. A nil writer yields io.Discard.
func NewFlushingWriter(writer io.Writer) io.Writer {
	if writer == nil {
		return io.Discard
	}
	if _, alreadyWrapped := writer.(*FlushingWriter); alreadyWrapped {
		return writer
	}
	return &FlushingWriter{writer: writer}
}

// Unwrap exposes the underlying writer, which lets callers inspect it for terminal support.
func (flushingWriter *FlushingWriter) Unwrap() io.Writer {
	return flushingWriter.writer
}

// Write delegates to the underlying writer and flushes it when possible.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	if flushableWriter, implementsFlush := flushingWriter.writer.(flusher); implementsFlush {
		if flushError := flushableWriter.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}

	return bytesWritten, nil
}

// Sync forwards to the underlying writer when it supports syncing.
func (flushingWriter *FlushingWriter) Sync() error {
	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	if syncingWriter, implementsSync := flushingWriter.writer.(syncer); implementsSync {
		return syncingWriter.Sync()
	}
	return nil
}
