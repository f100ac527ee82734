package mirror

import (
	"bytes"
	"io"
	"net/http"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
	"github.com/mhalle/vost/pkg/vosterr"
)

// HTTPTransport is a minimal git smart-HTTP v1 client: info/refs
// discovery, an upload-pack fetch negotiation, and a receive-pack push,
// scoped to what mirror needs — no shallow, no multi_ack_detailed, no
// sideband multiplexing beyond the single mandatory band.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, client: &http.Client{}}
}

func (t *HTTPTransport) ListRefs() (map[string]object.Hash, error) {
	resp, err := t.client.Get(t.baseURL + "/info/refs?service=git-upload-pack")
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, vosterr.Newf(vosterr.IO, "info/refs: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	return parseRefAdvertisement(body)
}

func (t *HTTPTransport) Fetch(local *vost.Repository, wanted map[string]object.Hash) error {
	reqBody, err := buildFetchRequest(wanted)
	if err != nil {
		return err
	}
	resp, err := t.client.Post(t.baseURL+"/git-upload-pack", "application/x-git-upload-pack-request", bytes.NewReader(reqBody))
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return vosterr.Newf(vosterr.IO, "git-upload-pack: unexpected status %d", resp.StatusCode)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}

	pack, err := extractPackfile(respBody)
	if err != nil {
		return err
	}
	return importPack(local.ObjectStore(), pack)
}

// extractPackfile drops the leading ACK/NAK negotiation pkt-lines and
// returns the packfile bytes, demultiplexing the mandatory sideband band
// if the server used it.
func extractPackfile(body []byte) ([]byte, error) {
	// The ACK/NAK negotiation lines (if any) are pkt-line framed; discard
	// them and keep only what follows the negotiation's flush-pkt.
	_, remainder, err := decodePktLines(body)
	if err != nil {
		return nil, err
	}
	// What's left is either a raw pack (non-multiplexed) or a
	// sideband-wrapped stream of further pkt-lines.
	if len(remainder) >= 4 && string(remainder[:4]) == "PACK" {
		return remainder, nil
	}
	return stripSidebandBand1(remainder)
}

func (t *HTTPTransport) Push(local *vost.Repository, refspecs []RefUpdate) error {
	remoteRefs, err := t.ListRefs()
	if err != nil {
		return err
	}

	cmds := make([]pushCommand, 0, len(refspecs))
	var tips []object.Hash
	for _, u := range refspecs {
		cmds = append(cmds, pushCommand{Name: u.Name, Old: remoteRefs[u.Name], New: u.New})
		if !u.New.IsZero() {
			tips = append(tips, u.New)
		}
	}
	cmdBytes, err := buildPushRequest(cmds)
	if err != nil {
		return err
	}
	pack, err := packBytes(local.ObjectStore(), tips)
	if err != nil {
		return err
	}

	var reqBody bytes.Buffer
	reqBody.Write(cmdBytes)
	reqBody.Write(pack)

	resp, err := t.client.Post(t.baseURL+"/git-receive-pack", "application/x-git-receive-pack-request", &reqBody)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return vosterr.Newf(vosterr.IO, "git-receive-pack: unexpected status %d", resp.StatusCode)
	}
	report, err := io.ReadAll(resp.Body)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return checkReceivePackReport(report)
}

func checkReceivePackReport(body []byte) error {
	lines, _, err := decodePktLines(body)
	if err != nil {
		return err
	}
	for _, line := range lines {
		s := string(line)
		if len(s) >= 3 && s[:3] == "ng " {
			return vosterr.Newf(vosterr.IO, "remote rejected ref update: %s", s)
		}
	}
	return nil
}

func (t *HTTPTransport) Close() error { return nil }
