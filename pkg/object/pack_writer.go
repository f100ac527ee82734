package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackWriter streams zlib-compressed objects into a single pack file,
// trailed by a SHA-1 checksum over every byte written before it —
// git's own pack trailer, sized for this format's 40-hex ids rather than
// SHA-256.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool
}

func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
	}
	header := PackHeader{Version: supportedPackVersion, NumObjects: numObjects}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

func (p *PackWriter) CurrentOffset() uint64 { return p.counter.n }

// WriteEntry appends one object, returning the byte offset it was written
// at (what the index needs) and the CRC32 of its compressed bytes.
func (p *PackWriter) WriteEntry(typ ObjectType, data []byte) (offset uint64, crc uint32, err error) {
	if p.finished {
		return 0, 0, fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return 0, 0, fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}
	packType, err := packObjectType(typ)
	if err != nil {
		return 0, 0, err
	}

	offset = p.CurrentOffset()
	header := encodePackEntryHeader(packType, uint64(len(data)))
	if _, err := p.hashedW.Write(header); err != nil {
		return 0, 0, fmt.Errorf("write pack entry header: %w", err)
	}

	compressed, err := compressPackPayload(data)
	if err != nil {
		return 0, 0, fmt.Errorf("compress pack entry: %w", err)
	}
	crc = crc32Of(compressed)
	if _, err := p.hashedW.Write(compressed); err != nil {
		return 0, 0, fmt.Errorf("write compressed pack entry: %w", err)
	}

	p.written++
	return offset, crc, nil
}

// Finish validates the object count, writes the trailing checksum, and
// returns it.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return "", fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return "", fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}
	sum := p.hasher.Sum(nil)
	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer checksum: %w", err)
	}
	p.finished = true
	return HashFromBytes(sum), nil
}
