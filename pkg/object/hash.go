package object

import (
	"crypto/sha1"
	"fmt"
)

// hashPayload computes the content-addressed id of an object envelope the
// way git does: sha1("<type> <len>\0<content>").
func hashPayload(typ ObjectType, content []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", typ, len(content))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(content)
	return HashFromBytes(h.Sum(nil))
}

// HashBlob returns the id a blob's content would be stored under without
// writing anything.
func HashBlob(data []byte) Hash { return hashPayload(ObjBlob, data) }
