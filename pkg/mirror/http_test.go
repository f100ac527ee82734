package mirror

import "testing"

func TestExtractPackfileRawPack(t *testing.T) {
	negotiation, err := encodePktLines([]byte("NAK\n"))
	if err != nil {
		t.Fatalf("encodePktLines: %v", err)
	}
	raw := append([]byte("PACK"), []byte{0, 0, 0, 2, 0, 0, 0, 0}...)
	body := append(negotiation, raw...)

	got, err := extractPackfile(body)
	if err != nil {
		t.Fatalf("extractPackfile: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("extractPackfile = %q, want %q", got, raw)
	}
}

func TestExtractPackfileSidebandMultiplexed(t *testing.T) {
	negotiation, err := encodePktLines([]byte("NAK\n"))
	if err != nil {
		t.Fatalf("encodePktLines: %v", err)
	}
	sideband, err := encodePktLines(
		append([]byte{1}, []byte("PACKDATA1")...),
		append([]byte{2}, []byte("progress")...),
		append([]byte{1}, []byte("PACKDATA2")...),
	)
	if err != nil {
		t.Fatalf("encodePktLines: %v", err)
	}
	body := append(negotiation, sideband...)

	got, err := extractPackfile(body)
	if err != nil {
		t.Fatalf("extractPackfile: %v", err)
	}
	if string(got) != "PACKDATA1PACKDATA2" {
		t.Errorf("extractPackfile = %q, want %q", got, "PACKDATA1PACKDATA2")
	}
}

func TestCheckReceivePackReportAcceptsOKOnly(t *testing.T) {
	body, err := encodePktLines([]byte("unpack ok\n"), []byte("ok refs/heads/main\n"))
	if err != nil {
		t.Fatalf("encodePktLines: %v", err)
	}
	if err := checkReceivePackReport(body); err != nil {
		t.Errorf("checkReceivePackReport on an all-ok report: %v", err)
	}
}

func TestCheckReceivePackReportRejectsNg(t *testing.T) {
	body, err := encodePktLines([]byte("unpack ok\n"), []byte("ng refs/heads/main rejected\n"))
	if err != nil {
		t.Fatalf("encodePktLines: %v", err)
	}
	if err := checkReceivePackReport(body); err == nil {
		t.Fatalf("checkReceivePackReport with an ng line: want error, got nil")
	}
}
