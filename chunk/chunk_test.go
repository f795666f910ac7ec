package chunk

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func readAll(t *testing.T, data []byte, target int) []Chunk {
	t.Helper()
	c := New(bytes.NewReader(data), target)
	var chunks []Chunk
	for {
		ch, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

func TestChunksReassembleToOriginal(t *testing.T) {
	data := make([]byte, 5*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	chunks := readAll(t, data, 64*1024)
	var got []byte
	for _, c := range chunks {
		got = append(got, c.Data...)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reassembled data does not match original")
	}
}

func TestChunkBoundsRespected(t *testing.T) {
	data := make([]byte, 2*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	target := 64 * 1024
	chunks := readAll(t, data, target)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 2MiB input at 64KiB target")
	}
	min, max := target/2, target*4
	for i, c := range chunks {
		isLast := i == len(chunks)-1
		if c.Length < min && !isLast {
			t.Fatalf("chunk %d shorter than min (%d < %d)", i, c.Length, min)
		}
		if c.Length > max {
			t.Fatalf("chunk %d longer than max (%d > %d)", i, c.Length, max)
		}
	}
}

func TestIdenticalContentSameBoundaries(t *testing.T) {
	block := make([]byte, 200*1024)
	if _, err := rand.Read(block); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	padding := bytes.Repeat([]byte{0x42}, 37)

	fileA := block
	fileB := append(append([]byte{}, padding...), block...)

	chunksA := readAll(t, fileA, 64*1024)
	chunksB := readAll(t, fileB, 64*1024)

	// The shared `block` content should appear as an identical trailing
	// run of chunk lengths regardless of the leading offset in fileB.
	if len(chunksA) == 0 || len(chunksB) == 0 {
		t.Fatalf("expected at least one chunk in each file")
	}
	lastA := chunksA[len(chunksA)-1]
	lastB := chunksB[len(chunksB)-1]
	if lastA.Length != lastB.Length {
		t.Fatalf("expected content-defined boundary independent of offset, got lengths %d vs %d", lastA.Length, lastB.Length)
	}
}

func TestEmptyInput(t *testing.T) {
	chunks := readAll(t, nil, 64*1024)
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}
