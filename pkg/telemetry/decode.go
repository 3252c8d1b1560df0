package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ISOLocal is the timestamp layout the data source accepts for window bounds.
const ISOLocal = "2006-01-02T15:04:05"

var timeLayouts = []string{
	"02/Jan/2006 15:04:05", // firewall
	"1/2/2006 15:04",       // ids
	"1/2/2006 15:04:05",
	ISOLocal,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTime accepts any of the timestamp layouts used by the firewall and IDS feeds.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Issue is a non-fatal data-quality problem found while ingesting or reducing records.
type Issue struct {
	Index  int    `json:"index"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("record %d: %s (%q)", i.Index, i.Reason, i.Value)
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// wireRecord is the union of the firewall and IDS shapes served by the data source.
type wireRecord struct {
	// Firewall.
	DateTime            flexString `json:"DateTime"`
	SyslogPriority      flexString `json:"SyslogPriority"`
	Operation           flexString `json:"Operation"`
	MessageCode         flexString `json:"MessageCode"`
	Protocol            flexString `json:"Protocol"`
	SourceHostname      flexString `json:"SourceHostname"`
	DestinationHostname flexString `json:"DestinationHostname"`
	DestinationService  flexString `json:"DestinationService"`
	Direction           flexString `json:"Direction"`

	// IDS.
	Time           flexString `json:"time"`
	Classification flexString `json:"Classification"`
	Priority       flexString `json:"Priority"`
	Label          flexString `json:"Label"`
	PacketInfo     flexString `json:"PacketInfo"`
	PacketSize     flexString `json:"packetSize"`

	// Shared.
	SourceIP        flexString `json:"SourceIP"`
	DestinationIP   flexString `json:"DestinationIP"`
	SourcePort      flexString `json:"SourcePort"`
	DestinationPort flexString `json:"DestinationPort"`
}

var syslogSeverity = map[string]int{
	"emergency": 0, "emerg": 0,
	"alert":    1,
	"critical": 2, "crit": 2,
	"error": 3, "err": 3,
	"warning": 4, "warn": 4,
	"notice": 5,
	"info":   6, "informational": 6,
	"debug": 7,
}

// SeverityPriority maps a syslog severity name (or number) to its numeric priority.
func SeverityPriority(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := syslogSeverity[s]; ok {
		return p
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return NoPriority
}

func (w wireRecord) resolve(kind Kind, loc *time.Location) (Record, error) {
	r := Record{
		SourceIP:        string(w.SourceIP),
		DestinationIP:   string(w.DestinationIP),
		SourcePort:      string(w.SourcePort),
		DestinationPort: string(w.DestinationPort),
		Protocol:        string(w.Protocol),
		Direction:       string(w.Direction),
	}

	isFirewall := w.DateTime != "" || (kind == KindFirewall && w.Time == "")
	raw := string(w.Time)
	if isFirewall {
		raw = string(w.DateTime)
		r.Kind = KindFirewall
		r.SyslogPriority = string(w.SyslogPriority)
		r.Priority = SeverityPriority(r.SyslogPriority)
		r.Operation = string(w.Operation)
		r.MessageCode = string(w.MessageCode)
		r.DestinationService = string(w.DestinationService)
		r.SourceHostname = string(w.SourceHostname)
		r.DestinationHostname = string(w.DestinationHostname)
	} else {
		r.Kind = KindIDS
		r.Classification = string(w.Classification)
		r.Label = string(w.Label)
		if p, err := strconv.Atoi(string(w.Priority)); err == nil && p > 0 {
			r.Priority = p
		}
		if n, err := strconv.Atoi(string(w.PacketSize)); err == nil {
			r.PacketSize = n
		}
	}
	if kind == KindMerged || kind == KindCategory {
		r.Kind = kind
	}

	t, err := ParseTime(raw, loc)
	if err != nil {
		return r, err
	}
	r.Time = t
	r.Normalize()
	return r, nil
}

// Decoder turns a JSON array of wire records into Records.
type Decoder struct {
	// Location is used for timestamps that carry no zone. Defaults to time.Local.
	Location *time.Location
}

// Decode reads a JSON array from r. Records with an unparseable timestamp are
// dropped and reported as issues; a malformed document is an error.
func (d Decoder) Decode(kind Kind, r io.Reader) ([]Record, []Issue, error) {
	var wire []wireRecord
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, nil, fmt.Errorf("decode %s records: %w", kind, err)
	}

	records := make([]Record, 0, len(wire))
	var issues []Issue
	for i, w := range wire {
		rec, err := w.resolve(kind, d.Location)
		if err != nil {
			issues = append(issues, Issue{Index: i, Value: string(w.DateTime + w.Time), Reason: "bad timestamp"})
			continue
		}
		records = append(records, rec)
	}
	return records, issues, nil
}

// DecodeOne decodes a single JSON object, used by the live feed.
func (d Decoder) DecodeOne(kind Kind, data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("decode %s record: %w", kind, err)
	}
	return w.resolve(kind, d.Location)
}
