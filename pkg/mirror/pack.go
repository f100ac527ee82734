package mirror

import (
	"bytes"
	"io"

	"github.com/mhalle/vost/pkg/object"
)

type packObject struct {
	Type object.ObjectType
	Data []byte
}

// collectReachable walks every commit reachable from tips (via all
// parents, not just the first), and every tree/blob reachable from each
// commit's root tree, returning them in a stable write order (commits and
// trees discovered before the blobs/subtrees they reference are safe to
// write in either order since this store has no forward-reference
// constraint, but a deterministic order keeps bundle output reproducible).
func collectReachable(store *object.Store, tips []object.Hash) ([]object.Hash, map[object.Hash]packObject, error) {
	order := []object.Hash{}
	objs := map[object.Hash]packObject{}
	seen := map[object.Hash]bool{}

	var visitTree func(id object.Hash) error
	visitTree = func(id object.Hash) error {
		if id.IsZero() || seen[id] {
			return nil
		}
		seen[id] = true
		t, err := store.ReadTree(id)
		if err != nil {
			return err
		}
		raw := object.EncodeTree(t)
		objs[id] = packObject{Type: object.ObjTree, Data: raw}
		order = append(order, id)
		for _, e := range t.Entries {
			if e.Mode == object.ModeTree {
				if err := visitTree(e.ID); err != nil {
					return err
				}
			} else if !seen[e.ID] {
				seen[e.ID] = true
				data, err := store.ReadBlob(e.ID)
				if err != nil {
					return err
				}
				objs[e.ID] = packObject{Type: object.ObjBlob, Data: data}
				order = append(order, e.ID)
			}
		}
		return nil
	}

	var visitCommit func(id object.Hash) error
	visitCommit = func(id object.Hash) error {
		if id.IsZero() || seen[id] {
			return nil
		}
		seen[id] = true
		c, err := store.ReadCommit(id)
		if err != nil {
			return err
		}
		objs[id] = packObject{Type: object.ObjCommit, Data: object.EncodeCommit(c)}
		order = append(order, id)
		if err := visitTree(c.Tree); err != nil {
			return err
		}
		for _, p := range c.Parents {
			if err := visitCommit(p); err != nil {
				return err
			}
		}
		return nil
	}

	for _, tip := range tips {
		if err := visitCommit(tip); err != nil {
			return nil, nil, err
		}
	}
	return order, objs, nil
}

// writePack streams order/objs into w as a pack, returning the entries
// needed to build an accompanying index.
func writePack(w io.Writer, order []object.Hash, objs map[object.Hash]packObject) ([]object.PackIndexEntry, object.Hash, error) {
	pw, err := object.NewPackWriter(w, uint32(len(order)))
	if err != nil {
		return nil, "", err
	}
	entries := make([]object.PackIndexEntry, 0, len(order))
	for _, id := range order {
		o := objs[id]
		offset, crc, err := pw.WriteEntry(o.Type, o.Data)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, object.PackIndexEntry{Hash: id, Offset: offset, CRC32: crc})
	}
	checksum, err := pw.Finish()
	if err != nil {
		return nil, "", err
	}
	return entries, checksum, nil
}

// packBytes builds an in-memory pack for the commits reachable from tips.
func packBytes(store *object.Store, tips []object.Hash) ([]byte, error) {
	order, objs, err := collectReachable(store, tips)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, _, err := writePack(&buf, order, objs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// importPack decodes every object in a pack and writes each into store as
// a loose object. No .idx file is written.
func importPack(store *object.Store, data []byte) error {
	r, err := object.NewPackReader(data)
	if err != nil {
		return err
	}
	order, objs, err := r.All()
	if err != nil {
		return err
	}
	for _, id := range order {
		o := objs[id]
		if _, err := store.Write(o.Type, o.Data); err != nil {
			return err
		}
	}
	return nil
}
