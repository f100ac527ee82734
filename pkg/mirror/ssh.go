package mirror

import (
	"bytes"
	"net"
	"net/url"

	"golang.org/x/crypto/ssh"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
	"github.com/mhalle/vost/pkg/vosterr"
)

// SSHTransport dials an ssh:// endpoint and speaks the same pkt-line
// upload-pack/receive-pack protocol HTTPTransport uses, over the
// session's stdio instead of request/response bodies.
type SSHTransport struct {
	client *ssh.Client
	path   string // remote repository path
}

// NewSSHTransport dials rawURL (ssh://user@host[:port]/path) using the
// given signer for public-key auth.
func NewSSHTransport(rawURL string, signer ssh.Signer) (*SSHTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	if u.Scheme != "ssh" {
		return nil, vosterr.New(vosterr.Unsupported, "not an ssh:// url")
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}
	user := "git"
	if u.User != nil {
		user = u.User.Username()
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	return &SSHTransport{client: client, path: u.Path}, nil
}

func (t *SSHTransport) runCommand(cmd string, stdin []byte) ([]byte, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	defer session.Close()

	stdinPipe, err := session.StdinPipe()
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	var out bytes.Buffer
	session.Stdout = &out

	if err := session.Start(cmd); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	if _, err := stdinPipe.Write(stdin); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	if err := stdinPipe.Close(); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	if err := session.Wait(); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	return out.Bytes(), nil
}

func (t *SSHTransport) ListRefs() (map[string]object.Hash, error) {
	out, err := t.runCommand("git-upload-pack '"+t.path+"'", nil)
	if err != nil {
		return nil, err
	}
	return parseRefAdvertisement(out)
}

func (t *SSHTransport) Fetch(local *vost.Repository, wanted map[string]object.Hash) error {
	req, err := buildFetchRequest(wanted)
	if err != nil {
		return err
	}
	out, err := t.runCommand("git-upload-pack '"+t.path+"'", req)
	if err != nil {
		return err
	}
	pack, err := extractPackfile(out)
	if err != nil {
		return err
	}
	return importPack(local.ObjectStore(), pack)
}

func (t *SSHTransport) Push(local *vost.Repository, refspecs []RefUpdate) error {
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
	var body bytes.Buffer
	body.Write(cmdBytes)
	body.Write(pack)

	report, err := t.runCommand("git-receive-pack '"+t.path+"'", body.Bytes())
	if err != nil {
		return err
	}
	return checkReceivePackReport(report)
}

func (t *SSHTransport) Close() error { return t.client.Close() }
