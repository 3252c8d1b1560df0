// Package aggregate reduces records to per-subnet groups so large windows stay
// tractable in the graph and parallel-coordinates views.
package aggregate

import (
	"time"

	"github.com/sudorandom/flowscope/pkg/telemetry"
	"github.com/sudorandom/flowscope/pkg/utils"
)

// DefaultMaskBits groups sources by /24.
const DefaultMaskBits = 24

// Mixed is reported by Group.Protocol when members disagree.
const Mixed = "Mixed"

type TimeRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Group is every record whose source address masks to Subnet. Set-valued fields
// keep first-seen order.
type Group struct {
	Subnet      string `json:"subnet"`
	MaskBits    int    `json:"maskBits"`
	MemberCount int    `json:"memberCount"`

	SourceAddresses      []string  `json:"sourceAddresses"`
	DestinationAddresses []string  `json:"destinationAddresses"`
	DestinationPorts     []string  `json:"destinationPorts"`
	Directions           []string  `json:"directions"`
	Protocols            []string  `json:"protocols"`
	Labels               []string  `json:"labels"`
	TimeRange            TimeRange `json:"timeRange"`

	// Priority is the most severe (lowest) member priority.
	Priority    int            `json:"priority"`
	PacketBytes int            `json:"packetBytes"`
	Kind        telemetry.Kind `json:"kind"`
}

// Protocol returns the single protocol shared by all members, or Mixed.
func (g *Group) Protocol() string {
	switch len(g.Protocols) {
	case 0:
		return telemetry.Unknown
	case 1:
		return g.Protocols[0]
	}
	return Mixed
}

// Values returns the set of values the group holds for a named dimension.
func (g *Group) Values(dim string) ([]string, bool) {
	switch dim {
	case "DateTime", "Time":
		return []string{g.TimeRange.Min.Format(telemetry.ISOLocal)}, true
	case "SourceIP", "Subnet":
		return []string{g.Subnet}, true
	case "DestinationIP":
		return g.DestinationAddresses, true
	case "DestinationPort":
		return g.DestinationPorts, true
	case "Direction":
		return g.Directions, true
	case "Protocol":
		return g.Protocols, true
	case "Label":
		return g.Labels, true
	}
	return nil, false
}

// Result is the output of Aggregate. Issues lists records that were left out.
type Result struct {
	Groups []*Group
	Issues []telemetry.Issue
}

// Total returns the number of records represented by the groups.
func (r Result) Total() int {
	n := 0
	for _, g := range r.Groups {
		n += g.MemberCount
	}
	return n
}

// set is an insertion-ordered string set.
type set struct {
	seen  map[string]struct{}
	items *[]string
}

func newSet(items *[]string) set {
	return set{seen: make(map[string]struct{}), items: items}
}

func (s set) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	*s.items = append(*s.items, v)
}

type builder struct {
	group                                      *Group
	sources, dests, ports, dirs, protos, label set
}

func newBuilder(subnet string, bits int, first telemetry.Record) *builder {
	g := &Group{
		Subnet:    subnet,
		MaskBits:  bits,
		Priority:  first.Priority,
		Kind:      first.Kind,
		TimeRange: TimeRange{Min: first.Time, Max: first.Time},
	}
	return &builder{
		group:   g,
		sources: newSet(&g.SourceAddresses),
		dests:   newSet(&g.DestinationAddresses),
		ports:   newSet(&g.DestinationPorts),
		dirs:    newSet(&g.Directions),
		protos:  newSet(&g.Protocols),
		label:   newSet(&g.Labels),
	}
}

func (b *builder) add(r telemetry.Record) {
	g := b.group
	g.MemberCount++
	g.PacketBytes += r.PacketSize
	b.sources.add(r.SourceIP)
	if r.DestinationIP != "" {
		b.dests.add(r.DestinationIP)
	}
	if r.DestinationPort != "" {
		b.ports.add(r.DestinationPort)
	}
	b.dirs.add(orUnknown(r.Direction))
	b.protos.add(orUnknown(r.Protocol))
	b.label.add(r.LinkLabel())
	if r.Time.Before(g.TimeRange.Min) {
		g.TimeRange.Min = r.Time
	}
	if r.Time.After(g.TimeRange.Max) {
		g.TimeRange.Max = r.Time
	}
	if r.Priority < g.Priority {
		g.Priority = r.Priority
	}
	if g.Kind != r.Kind {
		g.Kind = telemetry.KindMerged
	}
}

func orUnknown(s string) string {
	if s == "" {
		return telemetry.Unknown
	}
	return s
}

// Aggregate partitions records by their source address masked to maskBits
// (clamped to 0-32) and merges each partition into a Group. Groups come out in
// the order their subnet was first seen. Records with a malformed source address
// are skipped and reported in Result.Issues.
func Aggregate(records []telemetry.Record, maskBits int) Result {
	maskBits = utils.ClampBits(maskBits)
	mask := utils.MaskBits(maskBits)

	var res Result
	builders := make(map[uint32]*builder)
	for i, r := range records {
		addr, err := utils.ParseIPv4(r.SourceIP)
		if err != nil {
			res.Issues = append(res.Issues, telemetry.Issue{Index: i, Value: r.SourceIP, Reason: "malformed source address"})
			continue
		}
		key := addr & mask
		b, ok := builders[key]
		if !ok {
			b = newBuilder(utils.IntToIP(key), maskBits, r)
			builders[key] = b
			res.Groups = append(res.Groups, b.group)
		}
		b.add(r)
	}
	return res
}
