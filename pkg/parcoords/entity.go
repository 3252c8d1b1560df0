// Package parcoords lays out parallel-coordinates plots of telemetry records or
// aggregated groups, and tracks per-axis brushes.
//
// Aggregated entities hold several values per dimension. Between two adjacent
// axes such an entity is drawn as the Cartesian product of its value pairs, so
// a group with 10 destination addresses and 20 ports contributes 200 segments
// between those two axes alone. Segment count grows multiplicatively with group
// fan-out; Plot.Stats reports it so callers can warn or fall back.
package parcoords

import (
	"math"
	"strings"
	"time"

	"github.com/sudorandom/flowscope/pkg/aggregate"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// Categorizer names the category of an address, or returns "" when it has none.
type Categorizer interface {
	Category(addr string) string
}

// Entity is one polyline: a record or an aggregated group.
type Entity struct {
	ID       string
	Kind     telemetry.Kind
	Time     time.Time
	Values   map[string][]string
	Count    int
	Label    string
	Category string
}

// Color returns the key the entity is colored by.
func (e *Entity) Color() string {
	if e.Category != "" {
		return e.Category
	}
	return e.Label
}

// Value returns the entity's values for a dimension, Unknown when it has none.
func (e *Entity) Value(dim string) []string {
	if v := e.Values[strings.ToLower(dim)]; len(v) > 0 {
		return v
	}
	return []string{telemetry.Unknown}
}

// IsTimeDimension reports whether a dimension is plotted on a continuous time scale.
func IsTimeDimension(dim string) bool {
	return strings.EqualFold(dim, "DateTime") || strings.EqualFold(dim, "Time")
}

// DefaultDimensions returns the axes shown for a kind of data.
func DefaultDimensions(kind telemetry.Kind) []string {
	dims := []string{"DateTime", "SourceIP", "DestinationPort", "DestinationIP"}
	if kind == telemetry.KindFirewall {
		dims = append(dims, "Direction")
	}
	return dims
}

var recordDimensions = []string{
	"SourceIP", "DestinationIP", "SourcePort", "DestinationPort", "Protocol",
	"Direction", "Classification", "Label", "Operation", "DestinationService", "SyslogPriority",
}

func categoryOf(c Categorizer, addr string) string {
	if c == nil {
		return ""
	}
	return c.Category(addr)
}

// FromRecords makes one single-valued entity per record. c may be nil.
func FromRecords(records []telemetry.Record, c Categorizer) []Entity {
	out := make([]Entity, len(records))
	for i, r := range records {
		vals := make(map[string][]string, len(recordDimensions))
		for _, d := range recordDimensions {
			if v, ok := r.Field(d); ok && v != "" {
				vals[strings.ToLower(d)] = []string{v}
			}
		}
		out[i] = Entity{
			ID:       r.SourceIP + ">" + r.DestinationIP,
			Kind:     r.Kind,
			Time:     r.Time,
			Values:   vals,
			Count:    1,
			Label:    r.LinkLabel(),
			Category: categoryOf(c, r.SourceIP),
		}
	}
	return out
}

var groupDimensions = []string{"SourceIP", "DestinationIP", "DestinationPort", "Direction", "Protocol", "Label"}

// FromGroups makes one multivalued entity per group. The time axis uses the
// group's earliest member.
func FromGroups(groups []*aggregate.Group, c Categorizer) []Entity {
	out := make([]Entity, len(groups))
	for i, g := range groups {
		vals := make(map[string][]string, len(groupDimensions))
		for _, d := range groupDimensions {
			if v, ok := g.Values(d); ok && len(v) > 0 {
				vals[strings.ToLower(d)] = v
			}
		}
		label := aggregate.Mixed
		if len(g.Labels) == 1 {
			label = g.Labels[0]
		}
		out[i] = Entity{
			ID:       g.Subnet,
			Kind:     g.Kind,
			Time:     g.TimeRange.Min,
			Values:   vals,
			Count:    g.MemberCount,
			Label:    label,
			Category: categoryOf(c, g.Subnet),
		}
	}
	return out
}

// StrokeWidth grows logarithmically with the number of records an entity stands for.
func StrokeWidth(base float64, count int) float64 {
	if count < 1 {
		count = 1
	}
	return base * (1 + math.Log(float64(count)))
}
