package mirror

import "testing"

func TestNewSSHTransportRejectsNonSSHScheme(t *testing.T) {
	_, err := NewSSHTransport("https://example.com/repo.git", nil)
	if err == nil {
		t.Fatalf("NewSSHTransport with a non-ssh:// URL: want error, got nil")
	}
}

func TestNewSSHTransportRejectsUnparseableURL(t *testing.T) {
	_, err := NewSSHTransport("ssh://[::1]:notaport/repo", nil)
	if err == nil {
		t.Fatalf("NewSSHTransport with an unparseable URL: want error, got nil")
	}
}
