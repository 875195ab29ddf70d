package tts

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestChunkStreamShortReads(t *testing.T) {
	audio := make([]byte, 2*chunkSize+7)
	for i := range audio {
		audio[i] = byte(i)
	}
	src := io.NopCloser(iotest.HalfReader(bytes.NewReader(audio)))
	s := newChunkStream(src, PCM24)

	var got []byte
	var sizes []int
	for {
		chunk, err := s.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if chunk == nil {
			break
		}
		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}

	if len(sizes) != 3 || sizes[0] != chunkSize || sizes[1] != chunkSize || sizes[2] != 7 {
		t.Errorf("chunk sizes = %v", sizes)
	}
	if !bytes.Equal(got, audio) {
		t.Error("reassembled audio differs from source")
	}
	if chunk, err := s.Read(); chunk != nil || err != nil {
		t.Errorf("read after end = %v, %v", chunk, err)
	}
}

func TestChunkStreamExactMultiple(t *testing.T) {
	s := bufferedStream(make([]byte, chunkSize), PCM24)
	chunk, err := s.Read()
	if err != nil || len(chunk) != chunkSize {
		t.Fatalf("first read = %d bytes, %v", len(chunk), err)
	}
	if chunk, err := s.Read(); chunk != nil || err != nil {
		t.Errorf("second read = %v, %v", chunk, err)
	}
}
