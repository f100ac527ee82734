package object

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PackReader extracts objects from an in-memory pack by offset. Packs
// produced by PackWriter never contain deltas, so each offset decodes
// directly to a full object payload.
type PackReader struct {
	data []byte
}

func NewPackReader(data []byte) (*PackReader, error) {
	if _, err := UnmarshalPackHeader(data); err != nil {
		return nil, err
	}
	return &PackReader{data: data}, nil
}

// ReadAt decodes the object starting at the given byte offset.
func (r *PackReader) ReadAt(offset uint64) (ObjectType, []byte, error) {
	if offset >= uint64(len(r.data)) {
		return "", nil, fmt.Errorf("pack offset %d out of range", offset)
	}
	packType, size, consumed := decodePackEntryHeader(r.data[offset:])
	if consumed == 0 {
		return "", nil, fmt.Errorf("pack entry header decode failed at offset %d", offset)
	}
	typ, err := packType.objectType()
	if err != nil {
		return "", nil, err
	}

	body := r.data[offset+uint64(consumed):]
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("pack entry at %d: %w", offset, err)
	}
	defer zr.Close()
	content, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
	if err != nil {
		return "", nil, fmt.Errorf("pack entry at %d: %w", offset, err)
	}
	if uint64(len(content)) != size {
		return "", nil, fmt.Errorf("pack entry at %d: size mismatch: got %d want %d", offset, len(content), size)
	}
	return typ, content, nil
}

// All decodes every object in the pack in stream order, without needing an
// index — used when importing a bundle into a fresh object store.
func (r *PackReader) All() ([]Hash, map[Hash]struct {
	Type ObjectType
	Data []byte
}, error) {
	header, err := UnmarshalPackHeader(r.data)
	if err != nil {
		return nil, nil, err
	}

	offset := uint64(packHeaderSize)
	order := make([]Hash, 0, header.NumObjects)
	objs := make(map[Hash]struct {
		Type ObjectType
		Data []byte
	}, header.NumObjects)

	for i := uint32(0); i < header.NumObjects; i++ {
		packType, size, consumed := decodePackEntryHeader(r.data[offset:])
		typ, err := packType.objectType()
		if err != nil {
			return nil, nil, err
		}
		body := r.data[offset+uint64(consumed):]
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, nil, fmt.Errorf("pack entry %d: %w", i, err)
		}
		content, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
		zr.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("pack entry %d: %w", i, err)
		}
		if uint64(len(content)) != size {
			return nil, nil, fmt.Errorf("pack entry %d: size mismatch", i)
		}

		// Recover how many compressed bytes this entry actually used by
		// re-compressing is wasteful; instead track via a counting
		// reader so the next offset is exact.
		consumedCompressed, err := compressedLen(body, size)
		if err != nil {
			return nil, nil, fmt.Errorf("pack entry %d: %w", i, err)
		}

		h := hashPayload(typ, content)
		order = append(order, h)
		objs[h] = struct {
			Type ObjectType
			Data []byte
		}{typ, content}

		offset += uint64(consumed) + uint64(consumedCompressed)
	}
	return order, objs, nil
}

// compressedLen reports how many bytes of a zlib stream at the front of
// body were consumed to produce exactly wantSize bytes of output, by
// re-running inflation through a byte-counting wrapper.
func compressedLen(body []byte, wantSize uint64) (int, error) {
	cr := &countingReader{r: bytes.NewReader(body)}
	zr, err := zlib.NewReader(cr)
	if err != nil {
		return 0, err
	}
	defer zr.Close()
	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		return 0, err
	}
	if uint64(n) != wantSize {
		return 0, fmt.Errorf("short read: got %d want %d", n, wantSize)
	}
	return cr.n, nil
}

type countingReader struct {
	r *bytes.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// ReadByte lets the inflater read one byte at a time instead of wrapping
// the reader in a read-ahead buffer, which would inflate the count.
func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
