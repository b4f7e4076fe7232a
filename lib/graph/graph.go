// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph models a catalog as a weighted directed graph and finds
// the cheapest way to obtain a version.
//
// Nodes are versions plus a virtual origin, the state of having
// nothing. Edges are concrete objects:
//
//   - download: origin to v, one per build of v available from a
//     non-local store, weighted by the cheapest copy's size;
//   - present: origin to v at zero cost, one per build already in the
//     local store;
//   - patch: from to to, one per patch, weighted by the cheapest
//     copy's size.
//
// No edge exists without an object behind it. [Resolve] runs Dijkstra
// from the origin, ordering paths by total bytes and then by number of
// transfer steps, and turns the winning path into a [Plan].
package graph

import (
	"fmt"
	"io"
	"slices"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/index"
)

// EdgeKind distinguishes the three kinds of edge.
type EdgeKind uint8

const (
	EdgeDownload EdgeKind = iota + 1
	EdgePresent
	EdgePatch
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeDownload:
		return "download"
	case EdgePresent:
		return "present"
	case EdgePatch:
		return "patch"
	default:
		return fmt.Sprintf("edge(%d)", uint8(k))
	}
}

// Edge is one way of reaching To from From. From is the zero Version
// for download and present edges.
type Edge struct {
	Kind EdgeKind
	From artifact.Version
	To   artifact.Version
	Cost int64

	// Locations are the copies the edge's object can be read from,
	// in preference order.
	Locations []index.Location
}

// Exclusion removes copies of an object from consideration. An empty
// Source excludes every copy.
type Exclusion struct {
	Name   string
	Source string
}

// Options adjusts graph construction.
type Options struct {
	// Exclude lists object copies known to be bad, typically after an
	// integrity failure in a previous attempt.
	Exclude []Exclusion
}

// Graph is immutable once built.
type Graph struct {
	nodes    []artifact.Version
	outgoing map[artifact.Version][]Edge
	edges    int
}

// Build constructs the graph for catalog.
func Build(catalog *index.Catalog, options Options) *Graph {
	graph := &Graph{outgoing: make(map[artifact.Version][]Edge)}
	nodes := map[artifact.Version]struct{}{{}: {}}

	for _, object := range catalog.Objects() {
		locations := filterLocations(object, options.Exclude)
		if len(locations) == 0 {
			continue
		}
		switch object.Name.Kind {
		case artifact.KindBuild:
			version := object.Name.Version
			nodes[version] = struct{}{}
			if locations[0].Local {
				graph.add(Edge{Kind: EdgePresent, To: version, Locations: locations[:1]})
			}
			var remote []index.Location
			for _, location := range locations {
				if !location.Local {
					remote = append(remote, location)
				}
			}
			if len(remote) > 0 {
				graph.add(Edge{Kind: EdgeDownload, To: version, Cost: cheapest(remote), Locations: remote})
			}
		case artifact.KindPatch:
			nodes[object.Name.From] = struct{}{}
			nodes[object.Name.To] = struct{}{}
			graph.add(Edge{
				Kind:      EdgePatch,
				From:      object.Name.From,
				To:        object.Name.To,
				Cost:      cheapest(locations),
				Locations: locations,
			})
		}
	}

	for node := range nodes {
		graph.nodes = append(graph.nodes, node)
	}
	slices.SortFunc(graph.nodes, artifact.Compare)
	return graph
}

func (g *Graph) add(edge Edge) {
	g.outgoing[edge.From] = append(g.outgoing[edge.From], edge)
	g.edges++
}

func filterLocations(object index.Object, exclude []Exclusion) []index.Location {
	key := object.Name.String()
	var kept []index.Location
	for _, location := range object.Locations {
		if !slices.ContainsFunc(exclude, func(exclusion Exclusion) bool {
			return exclusion.Name == key && (exclusion.Source == "" || exclusion.Source == location.Source)
		}) {
			kept = append(kept, location)
		}
	}
	return kept
}

func cheapest(locations []index.Location) int64 {
	cost := locations[0].Size
	for _, location := range locations[1:] {
		cost = min(cost, location.Size)
	}
	return cost
}

// Nodes returns every version in the graph in natural order, starting
// with the origin (the zero Version).
func (g *Graph) Nodes() []artifact.Version {
	return slices.Clone(g.nodes)
}

// Outgoing returns the edges leaving from, in construction order. Pass
// the zero Version for the origin's edges.
func (g *Graph) Outgoing(from artifact.Version) []Edge {
	return g.outgoing[from]
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edges }

// WriteDOT writes the graph in Graphviz format.
func (g *Graph) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph artefacta {"); err != nil {
		return err
	}
	for _, node := range g.nodes {
		for _, edge := range g.outgoing[node] {
			style := ""
			if edge.Kind == EdgePresent {
				style = ", style=dashed"
			}
			_, err := fmt.Fprintf(w, "  %q -> %q [label=\"%s %d\"%s];\n",
				nodeLabel(edge.From), nodeLabel(edge.To), edge.Kind, edge.Cost, style)
			if err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func nodeLabel(version artifact.Version) string {
	if version.IsZero() {
		return "origin"
	}
	return version.String()
}
