// Package telemetry defines the network event records flowscope consumes and
// resolves the firewall and intrusion-alert wire shapes into a single Record.
package telemetry

import (
	"strings"
	"time"
)

// Kind tags which source a record came from.
type Kind string

const (
	KindFirewall Kind = "firewall"
	KindIDS      Kind = "ids"
	KindMerged   Kind = "merged"
	KindCategory Kind = "category"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFirewall, KindIDS, KindMerged, KindCategory:
		return true
	}
	return false
}

const (
	// Unknown stands in for any missing categorical field (protocol, direction, label).
	Unknown = "Unknown"
	// NoPriority is the priority of a record that carries none. It sorts after every real priority.
	NoPriority = 999
	// HighPriority is the threshold at or below which a record is considered high priority.
	HighPriority = 2
	// DefaultPacketSize is assumed when an alert does not report its packet size.
	DefaultPacketSize = 1000
)

// Record is one network event. Firewall and IDS inputs are both resolved into this
// shape once, at ingestion; fields a source does not carry hold their sentinel.
type Record struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	SourceIP        string `json:"sourceIP"`
	DestinationIP   string `json:"destinationIP"`
	SourcePort      string `json:"sourcePort"`
	DestinationPort string `json:"destinationPort"`
	Protocol        string `json:"protocol"`
	Direction       string `json:"direction"`

	Priority       int    `json:"priority"`
	Classification string `json:"classification,omitempty"`
	Label          string `json:"label"`
	PacketSize     int    `json:"packetSize"`

	// Firewall extras.
	SyslogPriority      string `json:"syslogPriority,omitempty"`
	Operation           string `json:"operation,omitempty"`
	MessageCode         string `json:"messageCode,omitempty"`
	DestinationService  string `json:"destinationService,omitempty"`
	SourceHostname      string `json:"sourceHostname,omitempty"`
	DestinationHostname string `json:"destinationHostname,omitempty"`
}

// IsHighPriority reports whether the record crosses the high priority threshold.
func (r Record) IsHighPriority() bool {
	return r.Priority <= HighPriority
}

// LinkLabel is the label used to color links drawn for this record: the alert
// label when there is one, the protocol otherwise.
func (r Record) LinkLabel() string {
	if r.Label != "" && r.Label != Unknown {
		return r.Label
	}
	if r.Protocol != "" {
		return r.Protocol
	}
	return Unknown
}

// Field returns the value of a named dimension as a string. Names match the
// column names used by the data source. ok is false for unknown names.
func (r Record) Field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "datetime", "time":
		return r.Time.Format(ISOLocal), true
	case "sourceip":
		return r.SourceIP, true
	case "destinationip":
		return r.DestinationIP, true
	case "sourceport":
		return r.SourcePort, true
	case "destinationport":
		return r.DestinationPort, true
	case "protocol":
		return r.Protocol, true
	case "direction":
		return r.Direction, true
	case "classification":
		return r.Classification, true
	case "label":
		return r.Label, true
	case "operation":
		return r.Operation, true
	case "destinationservice":
		return r.DestinationService, true
	case "syslogpriority":
		return r.SyslogPriority, true
	}
	return "", false
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") || strings.EqualFold(s, "(empty)") {
		return Unknown
	}
	return s
}

// Normalize fills in sentinels for missing fields. Decoders call it; callers
// constructing records by hand may too.
func (r *Record) Normalize() {
	r.Protocol = orUnknown(r.Protocol)
	r.Direction = orUnknown(r.Direction)
	r.Label = orUnknown(r.Label)
	if r.Priority <= 0 && r.Kind != KindFirewall {
		r.Priority = NoPriority
	}
	if r.PacketSize <= 0 {
		r.PacketSize = DefaultPacketSize
	}
}
