package mirror

import (
	"path/filepath"
	"testing"
)

func TestOpenTransportBundlePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.bundle")
	transport, err := OpenTransport(path, nil)
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	if _, ok := transport.(*BundleTransport); !ok {
		t.Errorf("OpenTransport(%q) = %T, want *BundleTransport", path, transport)
	}
}

func TestOpenTransportLocalPath(t *testing.T) {
	repo := newTestRepo(t)
	transport, err := OpenTransport(repo.Root(), nil)
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	if _, ok := transport.(*LocalTransport); !ok {
		t.Errorf("OpenTransport(%q) = %T, want *LocalTransport", repo.Root(), transport)
	}
}

func TestOpenTransportHTTPScheme(t *testing.T) {
	transport, err := OpenTransport("https://example.com/repo.git", nil)
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	if _, ok := transport.(*HTTPTransport); !ok {
		t.Errorf("OpenTransport(https://...) = %T, want *HTTPTransport", transport)
	}
}

func TestOpenTransportSSHWithoutSignerFails(t *testing.T) {
	_, err := OpenTransport("ssh://git@example.com/repo.git", nil)
	if err == nil {
		t.Fatalf("OpenTransport(ssh://...) without a signer: want error, got nil")
	}
}

func TestOpenTransportGitSchemeUnsupported(t *testing.T) {
	_, err := OpenTransport("git://example.com/repo.git", nil)
	if err == nil {
		t.Fatalf("OpenTransport(git://...): want Unsupported error, got nil")
	}
}
