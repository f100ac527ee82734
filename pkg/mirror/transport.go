package mirror

import (
	"net/url"

	"golang.org/x/crypto/ssh"

	"github.com/mhalle/vost/pkg/vost"
	"github.com/mhalle/vost/pkg/vosterr"
)

// SSHSignerFunc lazily produces the key SSHTransport authenticates with,
// so callers that never touch an ssh:// URL never need to load one.
type SSHSignerFunc func() (ssh.Signer, error)

// OpenTransport resolves a destination/source string to a Transport: a
// `.bundle`-suffixed path, a local filesystem path or `file://` URL (opened
// directly as another repository), an `http(s)://` URL, or an `ssh://`
// URL. `git://` URLs are recognized but rejected as Unsupported — the
// anonymous git daemon protocol predates and is orthogonal to the
// object-store/ref engine this package implements, and nothing in the
// reference pack grounds a client for it.
func OpenTransport(target string, signer SSHSignerFunc) (Transport, error) {
	if IsBundlePath(target) {
		return NewBundleTransport(target), nil
	}

	u, err := url.Parse(target)
	if err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "http", "https":
			return NewHTTPTransport(target), nil
		case "ssh":
			if signer == nil {
				return nil, vosterr.New(vosterr.PermissionDenied, "ssh transport requires a signer")
			}
			s, err := signer()
			if err != nil {
				return nil, err
			}
			return NewSSHTransport(target, s)
		case "git":
			return nil, vosterr.New(vosterr.Unsupported, "git:// daemon protocol is not implemented")
		case "file":
			return openLocalTransport(u.Path)
		}
	}
	return openLocalTransport(target)
}

func openLocalTransport(path string) (Transport, error) {
	repo, err := vost.Open(path, vost.OpenOptions{})
	if err != nil {
		return nil, err
	}
	return NewLocalTransport(repo), nil
}
