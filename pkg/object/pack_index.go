package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
)

const (
	packIndexVersion        = 2
	packIndexFanoutSize     = 256 * 4
	packIndexLargeOffsetBit = uint32(1 << 31)
)

var packIndexMagic = [4]byte{0xff, 't', 'O', 'c'}

func crc32Of(b []byte) uint32 { return crc32.ChecksumIEEE(b) }

// PackIndexEntry is one row of a pack index: an object id, its byte offset
// in the pack, and the CRC32 of its compressed entry.
type PackIndexEntry struct {
	Hash   Hash
	Offset uint64
	CRC32  uint32
}

func normalizePackIndexEntries(entries []PackIndexEntry) ([]PackIndexEntry, error) {
	out := make([]PackIndexEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if !out[i].Hash.Valid() {
			return nil, fmt.Errorf("entry %d: invalid hash %q", i, out[i].Hash)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

// WritePackIndex writes a git idx-v2-shaped index (magic, 256-entry
// fanout, sorted hash table, CRC32 table, offset table, trailing
// checksums) for the given entries and pack checksum, switched to
// 20-byte/40-hex SHA-1 ids and a SHA-1 index checksum.
func WritePackIndex(w io.Writer, entries []PackIndexEntry, packChecksum Hash) (Hash, error) {
	normalized, err := normalizePackIndexEntries(entries)
	if err != nil {
		return "", err
	}
	packChecksumRaw, err := packChecksum.Bytes()
	if err != nil {
		return "", fmt.Errorf("pack checksum: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(packIndexMagic[:])
	binary.Write(&buf, binary.BigEndian, uint32(packIndexVersion))

	fanout := buildPackIndexFanout(normalized)
	for i := 0; i < 256; i++ {
		binary.Write(&buf, binary.BigEndian, fanout[i])
	}

	for _, e := range normalized {
		raw, _ := e.Hash.Bytes()
		buf.Write(raw)
	}
	for _, e := range normalized {
		binary.Write(&buf, binary.BigEndian, e.CRC32)
	}

	var largeOffsets []uint64
	for _, e := range normalized {
		if e.Offset < uint64(packIndexLargeOffsetBit) {
			binary.Write(&buf, binary.BigEndian, uint32(e.Offset))
			continue
		}
		pos := uint32(len(largeOffsets))
		binary.Write(&buf, binary.BigEndian, packIndexLargeOffsetBit|pos)
		largeOffsets = append(largeOffsets, e.Offset)
	}
	for _, off := range largeOffsets {
		binary.Write(&buf, binary.BigEndian, off)
	}

	buf.Write(packChecksumRaw)
	indexSum := sha1.Sum(buf.Bytes())
	buf.Write(indexSum[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("write pack index: %w", err)
	}
	return HashFromBytes(indexSum[:]), nil
}

func buildPackIndexFanout(entries []PackIndexEntry) [256]uint32 {
	var counts [256]uint32
	for _, e := range entries {
		raw, _ := e.Hash.Bytes()
		counts[int(raw[0])]++
	}
	var fanout [256]uint32
	var total uint32
	for i := 0; i < 256; i++ {
		total += counts[i]
		fanout[i] = total
	}
	return fanout
}

// ReadPackIndex parses a git idx-v2-shaped index and returns its entries.
func ReadPackIndex(data []byte) ([]PackIndexEntry, Hash, error) {
	if len(data) < 4+4+packIndexFanoutSize+20 {
		return nil, "", fmt.Errorf("pack index too short")
	}
	if !bytes.Equal(data[:4], packIndexMagic[:]) {
		return nil, "", fmt.Errorf("invalid pack index magic")
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != packIndexVersion {
		return nil, "", fmt.Errorf("unsupported pack index version %d", version)
	}

	fanoutOff := 8
	var fanout [256]uint32
	for i := 0; i < 256; i++ {
		fanout[i] = binary.BigEndian.Uint32(data[fanoutOff+i*4 : fanoutOff+i*4+4])
	}
	count := int(fanout[255])

	hashesOff := fanoutOff + packIndexFanoutSize
	crcsOff := hashesOff + count*20
	offsetsOff := crcsOff + count*4
	smallOffsetsEnd := offsetsOff + count*4

	if len(data) < smallOffsetsEnd+20+20 {
		return nil, "", fmt.Errorf("pack index truncated")
	}

	entries := make([]PackIndexEntry, count)
	var largeNeeded int
	for i := 0; i < count; i++ {
		h := HashFromBytes(data[hashesOff+i*20 : hashesOff+i*20+20])
		crc := binary.BigEndian.Uint32(data[crcsOff+i*4 : crcsOff+i*4+4])
		rawOff := binary.BigEndian.Uint32(data[offsetsOff+i*4 : offsetsOff+i*4+4])
		entries[i] = PackIndexEntry{Hash: h, CRC32: crc}
		if rawOff&packIndexLargeOffsetBit != 0 {
			idx := int(rawOff &^ packIndexLargeOffsetBit)
			if idx+1 > largeNeeded {
				largeNeeded = idx + 1
			}
			entries[i].Offset = uint64(idx) // patched below
		} else {
			entries[i].Offset = uint64(rawOff)
		}
	}

	largeOff := smallOffsetsEnd
	largeTable := make([]uint64, largeNeeded)
	for i := 0; i < largeNeeded; i++ {
		largeTable[i] = binary.BigEndian.Uint64(data[largeOff+i*8 : largeOff+i*8+8])
	}
	largeOffEnd := largeOff + largeNeeded*8
	for i := range entries {
		rawOff := binary.BigEndian.Uint32(data[offsetsOff+i*4 : offsetsOff+i*4+4])
		if rawOff&packIndexLargeOffsetBit != 0 {
			entries[i].Offset = largeTable[entries[i].Offset]
		}
	}

	if len(data) < largeOffEnd+20+20 {
		return nil, "", fmt.Errorf("pack index truncated at trailer")
	}
	packChecksum := HashFromBytes(data[largeOffEnd : largeOffEnd+20])
	return entries, packChecksum, nil
}
