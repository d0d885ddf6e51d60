// Package modgraph renders a mod's dependency, event and callback
// relationships as a graph.
package modgraph

import (
	"fmt"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"n64recomp/internal/recomp"
)

// Build constructs a lattice.Graph from ctx's dependency and event graph.
// Each dependency becomes a node. Callbacks connect the local callback
// function to the dependency event it subscribes to; import symbols connect
// the importing mod to the dependency that provides them; provided events
// and exported functions hang off the mod's own node.
func Build(modName string, ctx *recomp.Context) *lattice.Graph {
	g := &lattice.Graph{}
	g.Nodes = append(g.Nodes, modName)
	for _, dep := range ctx.Dependencies {
		g.Nodes = append(g.Nodes, depLabel(modName, dep))
	}

	for _, imp := range ctx.ImportSymbols {
		dep := depLabel(modName, ctx.Dependencies[imp.DependencyIndex])
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: modName,
			Callee: fmt.Sprintf("%s:%s", dep, imp.Name),
		})
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: fmt.Sprintf("%s:%s", dep, imp.Name),
			Callee: dep,
		})
	}

	for _, cb := range ctx.Callbacks {
		ev := ctx.DependencyEvents[cb.DependencyEventIndex]
		dep := depLabel(modName, ctx.Dependencies[ev.DependencyIndex])
		fn := ctx.Functions[cb.FunctionIndex].Name
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: fmt.Sprintf("%s:%s", dep, ev.EventName),
			Callee: fn,
		})
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: dep,
			Callee: fmt.Sprintf("%s:%s", dep, ev.EventName),
		})
	}

	for _, ev := range ctx.EventSymbols {
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: modName,
			Callee: fmt.Sprintf("event:%s", ev.Name),
		})
	}

	for _, fi := range ctx.ExportedFuncs {
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: modName,
			Callee: fmt.Sprintf("export:%s", ctx.Functions[fi].Name),
		})
	}

	g.Dedup()
	return g
}

// DOT renders the graph in Graphviz DOT form.
func DOT(modName string, ctx *recomp.Context) string {
	return render.DOT(Build(modName, ctx), "modgraph")
}

// depLabel names a dependency node, spelling out the two reserved ids.
func depLabel(modName, dep string) string {
	switch dep {
	case recomp.DependencySelf:
		return modName
	case recomp.DependencyBaseRecomp:
		return "base"
	default:
		return dep
	}
}
