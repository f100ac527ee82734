package mirror

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
	"github.com/mhalle/vost/pkg/vosterr"
)

const bundleHeaderLine = "# v2 git bundle"

// WriteBundle writes the portable bundle format to path: a text header
// (version line, ref table, blank line) followed by a packfile covering
// every commit reachable from the listed ref tips.
func WriteBundle(path string, store *object.Store, refs map[string]object.Hash) error {
	var header bytes.Buffer
	header.WriteString(bundleHeaderLine + "\n")
	for name, id := range refs {
		if name == "HEAD" {
			continue
		}
		fmt.Fprintf(&header, "%s %s\n", id, name)
	}
	header.WriteString("\n")

	tips := make([]object.Hash, 0, len(refs))
	for _, id := range refs {
		tips = append(tips, id)
	}
	order, objs, err := collectReachable(store, tips)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	defer f.Close()

	if _, err := f.Write(header.Bytes()); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	if _, _, err := writePack(f, order, objs); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}

// ReadBundleHeader parses just the ref table from a bundle file,
// tolerating prerequisite lines (beginning with "-").
func ReadBundleHeader(path string) (map[string]object.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	defer f.Close()

	refs := map[string]object.Hash{}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			if !strings.HasPrefix(line, "# v") {
				return nil, vosterr.New(vosterr.Git, "not a bundle file: missing version header")
			}
			first = false
			continue
		}
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "-") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, vosterr.Newf(vosterr.Git, "malformed bundle ref line %q", line)
		}
		refs[parts[1]] = object.Hash(parts[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	return refs, nil
}

// ReadBundle parses the full bundle file: ref table plus raw packfile
// bytes, ready for importPack.
func ReadBundle(path string) (map[string]object.Hash, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, vosterr.Wrap(vosterr.IO, err)
	}
	sep := []byte("\n\n")
	idx := bytes.Index(data, sep)
	if idx < 0 {
		return nil, nil, vosterr.New(vosterr.Git, "bundle: missing header/pack separator")
	}
	header := data[:idx]
	pack := data[idx+len(sep):]

	refs := map[string]object.Hash{}
	lines := strings.Split(string(header), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "# v") {
		return nil, nil, vosterr.New(vosterr.Git, "not a bundle file: missing version header")
	}
	for _, line := range lines[1:] {
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, nil, vosterr.Newf(vosterr.Git, "malformed bundle ref line %q", line)
		}
		refs[parts[1]] = object.Hash(parts[0])
	}
	return refs, pack, nil
}

// BundleTransport reads/writes a single .bundle file as a transfer
// endpoint: ListRefs/Fetch read an existing bundle, Push writes one.
type BundleTransport struct {
	path string
}

func NewBundleTransport(path string) *BundleTransport { return &BundleTransport{path: path} }

func (t *BundleTransport) ListRefs() (map[string]object.Hash, error) {
	return ReadBundleHeader(t.path)
}

func (t *BundleTransport) Fetch(local *vost.Repository, wanted map[string]object.Hash) error {
	_, pack, err := ReadBundle(t.path)
	if err != nil {
		return err
	}
	return importPack(local.ObjectStore(), pack)
}

func (t *BundleTransport) Push(local *vost.Repository, refspecs []RefUpdate) error {
	refs := map[string]object.Hash{}
	for _, u := range refspecs {
		if u.New.IsZero() {
			continue // bundles are additive; there is no way to express a delete
		}
		refs[u.Name] = u.New
	}
	return WriteBundle(t.path, local.ObjectStore(), refs)
}

func (t *BundleTransport) Close() error { return nil }

// IsBundlePath reports whether a destination path should be treated as a
// bundle target per the ".bundle" auto-selection rule.
func IsBundlePath(path string) bool { return strings.HasSuffix(path, ".bundle") }
