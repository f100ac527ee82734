package object

import (
	"bytes"
	"sort"
	"testing"
)

func TestPackIndexWriteReadRoundtrip(t *testing.T) {
	entries := []PackIndexEntry{
		{Hash: Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Offset: 12, CRC32: 0x1111},
		{Hash: Hash("000000000000000000000000000000000000000f"), Offset: 9000, CRC32: 0x2222},
		{Hash: Hash("ffffffffffffffffffffffffffffffffffffffff"), Offset: 1 << 33, CRC32: 0x3333},
	}
	packChecksum := Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	var buf bytes.Buffer
	indexChecksum, err := WritePackIndex(&buf, entries, packChecksum)
	if err != nil {
		t.Fatalf("WritePackIndex: %v", err)
	}
	if !indexChecksum.Valid() {
		t.Fatalf("WritePackIndex returned invalid checksum %q", indexChecksum)
	}

	got, gotPackChecksum, err := ReadPackIndex(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackIndex: %v", err)
	}
	if gotPackChecksum != packChecksum {
		t.Fatalf("ReadPackIndex pack checksum = %q, want %q", gotPackChecksum, packChecksum)
	}
	if len(got) != len(entries) {
		t.Fatalf("ReadPackIndex: got %d entries, want %d", len(got), len(entries))
	}

	want := append([]PackIndexEntry(nil), entries...)
	sort.Slice(want, func(i, j int) bool { return want[i].Hash < want[j].Hash })
	for i := range want {
		if got[i].Hash != want[i].Hash || got[i].Offset != want[i].Offset || got[i].CRC32 != want[i].CRC32 {
			t.Fatalf("ReadPackIndex[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPackIndexRejectsInvalidHash(t *testing.T) {
	entries := []PackIndexEntry{{Hash: Hash("not-a-hash"), Offset: 0, CRC32: 0}}
	var buf bytes.Buffer
	if _, err := WritePackIndex(&buf, entries, ZeroHash); err == nil {
		t.Fatalf("WritePackIndex with invalid hash: want error, got nil")
	}
}

func TestPackIndexRejectsBadMagic(t *testing.T) {
	if _, _, err := ReadPackIndex(bytes.Repeat([]byte{0}, 2000)); err == nil {
		t.Fatalf("ReadPackIndex with bad magic: want error, got nil")
	}
}
