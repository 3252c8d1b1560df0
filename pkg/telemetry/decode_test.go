package telemetry

import (
	"strings"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"06/Apr/2012 17:40:02", "2012-04-06T17:40:02"},
		{"4/6/2012 17:23", "2012-04-06T17:23:00"},
		{"2012-04-05T17:51:26", "2012-04-05T17:51:26"},
		{"2012-04-07 09:00:04", "2012-04-07T09:00:04"},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in, time.UTC)
		if err != nil {
			t.Errorf("ParseTime(%q) error: %v", tt.in, err)
			continue
		}
		if s := got.Format(ISOLocal); s != tt.want {
			t.Errorf("ParseTime(%q) = %s, want %s", tt.in, s, tt.want)
		}
	}
	if _, err := ParseTime("yesterday", time.UTC); err == nil {
		t.Errorf("expected error for unrecognised timestamp")
	}
}

func TestDecodeFirewall(t *testing.T) {
	data := `[
		{"DateTime":"06/Apr/2012 17:40:02","SyslogPriority":"Info","Operation":"Built","MessageCode":"ASA-6-302013",
		 "Protocol":"TCP","SourceIP":"172.23.1.101","DestinationIP":"10.32.5.58","SourcePort":"1444","DestinationPort":6667,
		 "DestinationService":"ircd","Direction":"outbound"},
		{"DateTime":"06/Apr/2012 17:40:03","SyslogPriority":"Critical","Protocol":"","SourceIP":"172.23.1.102",
		 "DestinationIP":"10.32.5.58","SourcePort":"1445","DestinationPort":"80"},
		{"DateTime":"not a time","SourceIP":"172.23.1.103"}
	]`
	recs, issues, err := Decoder{Location: time.UTC}.Decode(KindFirewall, strings.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if len(issues) != 1 || issues[0].Index != 2 {
		t.Errorf("expected one issue for record 2, got %v", issues)
	}

	first := recs[0]
	if first.Kind != KindFirewall || first.DestinationPort != "6667" || first.Priority != 6 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.LinkLabel() != "TCP" {
		t.Errorf("firewall link label should be the protocol, got %s", first.LinkLabel())
	}

	second := recs[1]
	if second.Protocol != Unknown || second.Direction != Unknown {
		t.Errorf("missing fields should resolve to %q: %+v", Unknown, second)
	}
	if !second.IsHighPriority() {
		t.Errorf("critical severity should be high priority")
	}
}

func TestDecodeIDS(t *testing.T) {
	data := `[
		{"time":"4/6/2012 17:23","SourceIP":"10.32.5.51","SourcePort":"6667","DestinationIP":"172.23.0.10","DestinationPort":"1028",
		 "Classification":"Potential Corporate Privacy Violation","Priority":1,"Label":"IRC","PacketInfo":"TCP TTL:63"},
		{"time":"4/6/2012 17:24","SourceIP":"10.32.5.52","DestinationIP":"172.23.0.10"}
	]`
	recs, issues, err := Decoder{Location: time.UTC}.Decode(KindIDS, strings.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(issues) != 0 || len(recs) != 2 {
		t.Fatalf("got %d records, issues %v", len(recs), issues)
	}
	if recs[0].Priority != 1 || recs[0].LinkLabel() != "IRC" || recs[0].PacketSize != DefaultPacketSize {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Priority != NoPriority || recs[1].Label != Unknown {
		t.Errorf("defaults not applied: %+v", recs[1])
	}
}

func TestDecodeMerged(t *testing.T) {
	data := `[
		{"DateTime":"06/Apr/2012 17:40:02","SourceIP":"1.1.1.1","DestinationIP":"2.2.2.2"},
		{"time":"4/6/2012 17:23","SourceIP":"3.3.3.3","DestinationIP":"2.2.2.2"}
	]`
	recs, _, err := Decoder{Location: time.UTC}.Decode(KindMerged, strings.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for _, r := range recs {
		if r.Kind != KindMerged {
			t.Errorf("expected merged kind, got %s", r.Kind)
		}
	}
	if recs[0].SyslogPriority != "" || recs[0].Priority != NoPriority {
		t.Errorf("firewall record without severity should carry NoPriority: %+v", recs[0])
	}
}

func TestDecodeMalformedDocument(t *testing.T) {
	if _, _, err := (Decoder{}).Decode(KindIDS, strings.NewReader(`{"not":"an array"}`)); err == nil {
		t.Errorf("expected error for non-array document")
	}
}

func TestSeverityPriority(t *testing.T) {
	tests := map[string]int{
		"Emergency": 0, "alert": 1, "Crit": 2, "Error": 3, "Warning": 4, "Notice": 5, "Info": 6, "debug": 7,
		"4": 4, "": NoPriority, "loud": NoPriority,
	}
	for in, want := range tests {
		if got := SeverityPriority(in); got != want {
			t.Errorf("SeverityPriority(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRecordField(t *testing.T) {
	r := Record{SourceIP: "1.2.3.4", DestinationPort: "80", Time: time.Date(2012, 4, 6, 1, 2, 3, 0, time.UTC)}
	if v, ok := r.Field("DestinationPort"); !ok || v != "80" {
		t.Errorf("Field(DestinationPort) = %q, %v", v, ok)
	}
	if v, _ := r.Field("DateTime"); v != "2012-04-06T01:02:03" {
		t.Errorf("Field(DateTime) = %q", v)
	}
	if _, ok := r.Field("Nope"); ok {
		t.Errorf("unknown field should not resolve")
	}
}
