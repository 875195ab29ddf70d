package tts

import (
	"bytes"
	"fmt"
	"io"
)

// chunkSize is 100ms of 24 kHz 16-bit mono PCM.
const chunkSize = 4800

// chunkStream cuts a byte source into chunkSize reads. Every chunk but the
// last is exactly chunkSize bytes, so 16-bit PCM chunks hold whole samples.
type chunkStream struct {
	src    io.ReadCloser
	format AudioFormat
	eof    bool
}

func newChunkStream(src io.ReadCloser, format AudioFormat) *chunkStream {
	return &chunkStream{src: src, format: format}
}

func bufferedStream(audio []byte, format AudioFormat) *chunkStream {
	return newChunkStream(io.NopCloser(bytes.NewReader(audio)), format)
}

func (s *chunkStream) Read() ([]byte, error) {
	if s.eof {
		return nil, nil
	}

	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(s.src, buf)
	buf = buf[:n]
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.eof = true
	} else if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read audio: %w", err))
	}
	if n == 0 {
		return nil, nil
	}
	return buf, nil
}

func (s *chunkStream) Close() error        { return s.src.Close() }
func (s *chunkStream) Format() AudioFormat { return s.format }
