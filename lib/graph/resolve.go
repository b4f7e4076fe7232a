// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"container/heap"
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/index"
)

var tracer = otel.Tracer("github.com/bureau-foundation/artefacta/lib/graph")

// StepKind is the action a plan step performs.
type StepKind uint8

const (
	FetchFull StepKind = iota + 1
	FetchPatchAndApply
)

func (k StepKind) String() string {
	switch k {
	case FetchFull:
		return "FetchFull"
	case FetchPatchAndApply:
		return "FetchPatchAndApply"
	default:
		return fmt.Sprintf("StepKind(%d)", uint8(k))
	}
}

// Step is one transfer in a plan.
type Step struct {
	Kind StepKind

	// From is set for FetchPatchAndApply only.
	From artifact.Version
	To   artifact.Version
	Cost int64

	// Locations lists the copies of the step's object to try, in
	// order.
	Locations []index.Location
}

// ObjectName returns the name of the object the step transfers.
func (s Step) ObjectName() string {
	if s.Kind == FetchPatchAndApply {
		return artifact.PatchName(s.From, s.To)
	}
	return artifact.BuildName(s.To)
}

func (s Step) String() string {
	if s.Kind == FetchPatchAndApply {
		return fmt.Sprintf("%s(%s, %s)", s.Kind, s.From, s.To)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.To)
}

// Plan is the cheapest way to obtain Target. Base is the locally
// present version the first step starts from, or the zero Version when
// the plan starts with a full download. A plan for a version that is
// already present has no steps and Base equal to Target.
type Plan struct {
	Target artifact.Version
	Base   artifact.Version

	// BaseLocation is the local copy of Base, when Base is set.
	BaseLocation index.Location

	Steps []Step
	Cost  int64
}

// Empty reports whether the plan requires no transfers.
func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

func (p *Plan) String() string {
	var parts []string
	for _, step := range p.Steps {
		parts = append(parts, step.String())
	}
	return fmt.Sprintf("[%s] cost %d", strings.Join(parts, ", "), p.Cost)
}

// label is the best known path to a node.
type label struct {
	cost  int64
	steps int
	via   *Edge
	done  bool
}

func better(aCost int64, aSteps int, b label) bool {
	if aCost != b.cost {
		return aCost < b.cost
	}
	return aSteps < b.steps
}

// Resolve returns the cheapest plan reaching target. Paths are ordered
// by total cost, then by number of steps; present edges contribute no
// steps. An unreachable target fails with artifact.ErrUnreachable.
func Resolve(ctx context.Context, g *Graph, target artifact.Version) (*Plan, error) {
	_, span := tracer.Start(ctx, "graph.Resolve", trace.WithAttributes(
		attribute.String("target", target.String()),
		attribute.Int("graph.nodes", len(g.nodes)),
		attribute.Int("graph.edges", g.edges),
	))
	defer span.End()

	if target.IsZero() {
		return nil, fmt.Errorf("resolve: empty target version")
	}

	labels := map[artifact.Version]*label{{}: {}}
	queue := &frontier{}
	heap.Push(queue, queueItem{version: artifact.Version{}})

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := heap.Pop(queue).(queueItem)
		current := labels[item.version]
		if current.done || item.cost != current.cost || item.steps != current.steps {
			continue
		}
		current.done = true
		if item.version == target {
			break
		}

		for i := range g.outgoing[item.version] {
			edge := &g.outgoing[item.version][i]
			cost := current.cost + edge.Cost
			steps := current.steps
			if edge.Kind != EdgePresent {
				steps++
			}
			existing, seen := labels[edge.To]
			if seen && (existing.done || !better(cost, steps, *existing)) {
				continue
			}
			labels[edge.To] = &label{cost: cost, steps: steps, via: edge}
			heap.Push(queue, queueItem{version: edge.To, cost: cost, steps: steps})
		}
	}

	final, ok := labels[target]
	if !ok || !final.done {
		span.SetAttributes(attribute.Bool("unreachable", true))
		span.SetStatus(codes.Error, "unreachable")
		return nil, artifact.Errorf(artifact.ErrUnreachable, "resolve", target.String(),
			"no build or patch chain leads to %s", target)
	}

	plan := &Plan{Target: target, Cost: final.cost}
	for version := target; ; {
		edge := labels[version].via
		if edge == nil {
			break
		}
		switch edge.Kind {
		case EdgePresent:
			plan.Base = edge.To
			plan.BaseLocation = edge.Locations[0]
		case EdgeDownload:
			plan.Steps = append(plan.Steps, Step{Kind: FetchFull, To: edge.To, Cost: edge.Cost, Locations: edge.Locations})
		case EdgePatch:
			plan.Steps = append(plan.Steps, Step{Kind: FetchPatchAndApply, From: edge.From, To: edge.To, Cost: edge.Cost, Locations: edge.Locations})
		}
		version = edge.From
	}
	for i, j := 0, len(plan.Steps)-1; i < j; i, j = i+1, j-1 {
		plan.Steps[i], plan.Steps[j] = plan.Steps[j], plan.Steps[i]
	}

	span.SetAttributes(attribute.Int64("plan.cost", plan.Cost), attribute.Int("plan.steps", len(plan.Steps)))
	return plan, nil
}

type queueItem struct {
	version artifact.Version
	cost    int64
	steps   int
}

// frontier is a min-heap on (cost, steps, version).
type frontier []queueItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	if f[i].steps != f[j].steps {
		return f[i].steps < f[j].steps
	}
	return artifact.Compare(f[i].version, f[j].version) < 0
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(queueItem)) }

func (f *frontier) Pop() any {
	old := *f
	item := old[len(old)-1]
	*f = old[:len(old)-1]
	return item
}
