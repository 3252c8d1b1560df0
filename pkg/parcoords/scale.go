package parcoords

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sudorandom/flowscope/pkg/telemetry"
	"github.com/sudorandom/flowscope/pkg/utils"
)

// pointScale spreads n points evenly over [r0, r1]. A single point sits in the middle.
func pointScale(i, n int, r0, r1 float64) float64 {
	if n <= 1 {
		return (r0 + r1) / 2
	}
	return r0 + (r1-r0)*float64(i)/float64(n-1)
}

// TimeScale maps instants linearly onto [R0, R1].
type TimeScale struct {
	Min, Max time.Time
	R0, R1   float64
}

func (s TimeScale) Position(t time.Time) float64 {
	span := s.Max.Sub(s.Min)
	if span <= 0 {
		return (s.R0 + s.R1) / 2
	}
	f := float64(t.Sub(s.Min)) / float64(span)
	return s.R0 + (s.R1-s.R0)*f
}

// Invert maps a position back to an instant.
func (s TimeScale) Invert(y float64) time.Time {
	if s.R1 == s.R0 {
		return s.Min
	}
	f := (y - s.R0) / (s.R1 - s.R0)
	return s.Min.Add(time.Duration(f * float64(s.Max.Sub(s.Min))))
}

// PointScale places each distinct value of an ordinal domain at its own point.
type PointScale struct {
	Domain []string
	R0, R1 float64
	index  map[string]int
}

func newPointScale(values []string, r0, r1 float64) PointScale {
	domain := sortDomain(values)
	idx := make(map[string]int, len(domain))
	for i, v := range domain {
		idx[v] = i
	}
	return PointScale{Domain: domain, R0: r0, R1: r1, index: idx}
}

func (s PointScale) Position(v string) (float64, bool) {
	i, ok := s.index[v]
	if !ok {
		return 0, false
	}
	return pointScale(i, len(s.Domain), s.R0, s.R1), true
}

// Step is the distance between adjacent points.
func (s PointScale) Step() float64 {
	if len(s.Domain) <= 1 {
		return s.R1 - s.R0
	}
	return (s.R1 - s.R0) / float64(len(s.Domain)-1)
}

type domainOrder int

const (
	orderNumeric domainOrder = iota
	orderAddress
	orderLexical
)

func classify(values []string) domainOrder {
	numeric, address := true, true
	for _, v := range values {
		if v == telemetry.Unknown {
			continue
		}
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if address {
			if _, err := utils.ParseIPv4(v); err != nil {
				address = false
			}
		}
		if !numeric && !address {
			return orderLexical
		}
	}
	if numeric {
		return orderNumeric
	}
	return orderAddress
}

// sortDomain deduplicates values and orders them numerically, by address or
// lexically, whichever fits every value. Unknown always goes last.
func sortDomain(values []string) []string {
	seen := make(map[string]bool, len(values))
	var domain []string
	unknown := false
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		if v == telemetry.Unknown {
			unknown = true
			continue
		}
		domain = append(domain, v)
	}

	switch classify(domain) {
	case orderNumeric:
		slices.SortFunc(domain, func(a, b string) int {
			fa, _ := strconv.ParseFloat(a, 64)
			fb, _ := strconv.ParseFloat(b, 64)
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return strings.Compare(a, b)
		})
	case orderAddress:
		slices.SortFunc(domain, utils.CompareIPv4)
	default:
		slices.Sort(domain)
	}
	if unknown {
		domain = append(domain, telemetry.Unknown)
	}
	return domain
}
