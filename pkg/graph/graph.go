// Package graph builds node/link graphs from telemetry records or subnet groups.
package graph

import (
	"fmt"

	"github.com/sudorandom/flowscope/pkg/aggregate"
	"github.com/sudorandom/flowscope/pkg/telemetry"
	"github.com/sudorandom/flowscope/pkg/utils"
)

// Node is one endpoint: an address, or a subnet key when built from groups.
type Node struct {
	ID     string `json:"id"`
	Degree int    `json:"degree"`
	// HighPriority is set when any incident link is high priority.
	HighPriority bool `json:"highPriority"`
	// Members is the number of records the node stands for.
	Members int  `json:"members"`
	Subnet  bool `json:"subnet"`
}

// Link is a directed edge. Several links may join the same pair.
type Link struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Priority int    `json:"priority"`
	Weight   int    `json:"weight"`
	Label    string `json:"label"`
	Protocol string `json:"protocol"`
}

func (l Link) IsHighPriority() bool {
	return l.Priority <= telemetry.HighPriority
}

// Graph holds nodes in first-seen order and the links between them.
type Graph struct {
	Nodes  []Node            `json:"nodes"`
	Links  []Link            `json:"links"`
	Issues []telemetry.Issue `json:"-"`

	index map[string]int
}

func newGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Index returns the position of a node in Nodes.
func (g *Graph) Index(id string) (int, bool) {
	if g.index == nil {
		g.reindex()
	}
	i, ok := g.index[id]
	return i, ok
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
}

func (g *Graph) node(id string, subnet bool) *Node {
	i, ok := g.index[id]
	if !ok {
		i = len(g.Nodes)
		g.index[id] = i
		g.Nodes = append(g.Nodes, Node{ID: id, Subnet: subnet})
	}
	return &g.Nodes[i]
}

func (g *Graph) addLink(l Link, srcMembers int, srcSubnet bool) {
	src := g.node(l.Source, srcSubnet)
	if srcSubnet {
		src.Members = srcMembers
	} else {
		src.Members += srcMembers
	}
	src.Degree++
	dst := g.node(l.Target, false)
	if !srcSubnet {
		dst.Members++
	} else if dst.Members == 0 {
		dst.Members = 1
	}
	dst.Degree++
	if l.IsHighPriority() {
		g.Nodes[g.index[l.Source]].HighPriority = true
		g.Nodes[g.index[l.Target]].HighPriority = true
	}
	g.Links = append(g.Links, l)
}

// FromRecords builds one node per distinct address and one link per record.
// Records with a malformed endpoint are skipped and reported in Issues.
func FromRecords(records []telemetry.Record) *Graph {
	g := newGraph()
	for i, r := range records {
		if _, err := utils.ParseIPv4(r.SourceIP); err != nil {
			g.Issues = append(g.Issues, telemetry.Issue{Index: i, Value: r.SourceIP, Reason: "malformed source address"})
			continue
		}
		if _, err := utils.ParseIPv4(r.DestinationIP); err != nil {
			g.Issues = append(g.Issues, telemetry.Issue{Index: i, Value: r.DestinationIP, Reason: "malformed destination address"})
			continue
		}
		g.addLink(Link{
			Source:   r.SourceIP,
			Target:   r.DestinationIP,
			Priority: r.Priority,
			Weight:   r.PacketSize,
			Label:    r.LinkLabel(),
			Protocol: r.Protocol,
		}, 1, false)
	}
	return g
}

// FromGroups builds one node per subnet and destination address, with one link
// per (subnet, destination) pair.
func FromGroups(groups []*aggregate.Group) *Graph {
	g := newGraph()
	for i, grp := range groups {
		label := telemetry.Unknown
		switch len(grp.Labels) {
		case 0:
		case 1:
			label = grp.Labels[0]
		default:
			label = aggregate.Mixed
		}
		for _, dst := range grp.DestinationAddresses {
			if _, err := utils.ParseIPv4(dst); err != nil {
				g.Issues = append(g.Issues, telemetry.Issue{Index: i, Value: dst, Reason: "malformed destination address"})
				continue
			}
			g.addLink(Link{
				Source:   grp.Subnet,
				Target:   dst,
				Priority: grp.Priority,
				Weight:   grp.PacketBytes,
				Label:    label,
				Protocol: grp.Protocol(),
			}, grp.MemberCount, true)
		}
	}
	return g
}

// Entities is the input to Build: raw records, or groups when masking is on.
type Entities struct {
	Records []telemetry.Record
	Groups  []*aggregate.Group
	Grouped bool
}

// Build dispatches to FromGroups or FromRecords.
func Build(e Entities) *Graph {
	if e.Grouped {
		return FromGroups(e.Groups)
	}
	return FromRecords(e.Records)
}

// MaxDegree returns the largest node degree, or 0 for an empty graph.
func (g *Graph) MaxDegree() int {
	maxDeg := 0
	for _, n := range g.Nodes {
		if n.Degree > maxDeg {
			maxDeg = n.Degree
		}
	}
	return maxDeg
}

// Validate reports links whose endpoints are not nodes of this graph.
func (g *Graph) Validate() error {
	for i, l := range g.Links {
		if _, ok := g.Index(l.Source); !ok {
			return fmt.Errorf("link %d: unknown source %q", i, l.Source)
		}
		if _, ok := g.Index(l.Target); !ok {
			return fmt.Errorf("link %d: unknown target %q", i, l.Target)
		}
	}
	return nil
}

// Pair is every link between one ordered pair of nodes.
type Pair struct {
	Source, Target string
	Links          []Link
}

// Pairs groups links by ordered endpoint pair, in first-seen order.
func Pairs(links []Link) []Pair {
	type key struct{ s, t string }
	idx := make(map[key]int)
	var pairs []Pair
	for _, l := range links {
		k := key{l.Source, l.Target}
		i, ok := idx[k]
		if !ok {
			i = len(pairs)
			idx[k] = i
			pairs = append(pairs, Pair{Source: l.Source, Target: l.Target})
		}
		pairs[i].Links = append(pairs[i].Links, l)
	}
	return pairs
}
