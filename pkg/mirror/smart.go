package mirror

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mhalle/vost/pkg/object"
)

// parseRefAdvertisement parses the pkt-line ref advertisement both
// smart-HTTP and SSH transports receive: an optional "# service=...\n"
// line, a flush, then "<sha> <name>[\x00<capabilities>]\n" lines.
func parseRefAdvertisement(body []byte) (map[string]object.Hash, error) {
	lines, rest, err := decodePktLines(body)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 && strings.HasPrefix(string(lines[0]), "#") && len(rest) > 0 {
		more, _, err := decodePktLines(rest)
		if err != nil {
			return nil, err
		}
		lines = append(lines, more...)
	}
	refs := map[string]object.Hash{}
	for _, line := range lines {
		s := strings.TrimSuffix(string(line), "\n")
		if strings.HasPrefix(s, "#") {
			continue
		}
		if nul := strings.IndexByte(s, 0); nul >= 0 {
			s = s[:nul]
		}
		parts := strings.SplitN(s, " ", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[1] == "capabilities^{}" {
			continue
		}
		refs[parts[1]] = object.Hash(parts[0])
	}
	return refs, nil
}

// buildFetchRequest builds the pkt-line body git-upload-pack expects: a
// want line per tip and a trailing done.
func buildFetchRequest(wanted map[string]object.Hash) ([]byte, error) {
	var lines [][]byte
	for _, id := range wanted {
		lines = append(lines, []byte(fmt.Sprintf("want %s\n", id)))
	}
	body, err := encodePktLines(lines...)
	if err != nil {
		return nil, err
	}
	done, err := encodePktLine([]byte("done\n"))
	if err != nil {
		return nil, err
	}
	return append(body, done...), nil
}

// pushCommand is one git-receive-pack command line: the ref's previous
// and requested new id (ZeroHash on either side for create/delete).
type pushCommand struct {
	Name     string
	Old, New object.Hash
}

// buildPushRequest builds the pkt-line command list git-receive-pack
// expects, followed by a flush; the caller appends the packfile after.
func buildPushRequest(cmds []pushCommand) ([]byte, error) {
	var lines [][]byte
	for _, c := range cmds {
		oldID, newID := c.Old, c.New
		if oldID.IsZero() {
			oldID = object.ZeroHash
		}
		if newID.IsZero() {
			newID = object.ZeroHash
		}
		lines = append(lines, []byte(fmt.Sprintf("%s %s %s\x00report-status\n", oldID, newID, c.Name)))
	}
	return encodePktLines(lines...)
}

// stripSidebandBand1 removes the mandatory sideband-64k band-1 prefix byte
// from every pkt-line in a multiplexed upload-pack response, concatenating
// the payloads back into a single packfile byte stream. Lines on other
// bands (progress/error, bands 2 and 3) are dropped; this transport scope
// never negotiates those.
func stripSidebandBand1(body []byte) ([]byte, error) {
	lines, _, err := decodePktLines(body)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		band := line[0]
		if band == 1 {
			out.Write(line[1:])
		}
		// bands 2 (progress) and 3 (error) are intentionally dropped.
	}
	return out.Bytes(), nil
}
