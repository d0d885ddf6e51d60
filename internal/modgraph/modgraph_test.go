package modgraph

import (
	"strings"
	"testing"

	"n64recomp/internal/recomp"
)

func graphContext(t *testing.T) *recomp.Context {
	t.Helper()
	ctx := recomp.NewContext()
	ctx.AddSection(recomp.Section{Name: ".text", Executable: true, BssSectionIndex: recomp.NoSection})
	ctx.AddFunction(recomp.Function{Name: "on_init", Vram: 0x80400000, SectionIndex: 0})
	ctx.AddFunction(recomp.Function{Name: "draw_menu", Vram: 0x80400020, SectionIndex: 0})

	if !ctx.AddDependency("framework") {
		t.Fatal("AddDependency")
	}
	base, ok := ctx.FindDependency(recomp.DependencyBaseRecomp)
	if !ok {
		t.Fatal("FindDependency base")
	}

	if !ctx.AddImportSymbol("recomp_printf", base) {
		t.Fatal("AddImportSymbol")
	}
	evIdx, _ := ctx.AddDependencyEvent("init", 0)
	ctx.AddCallback(evIdx, 0)
	ctx.AddEventSymbol("menu_open")
	ctx.AddExportedFunction(1)
	return ctx
}

func TestBuild(t *testing.T) {
	ctx := graphContext(t)
	g := Build("mymod", ctx)

	wantNodes := []string{"mymod", "framework", "base"}
	for _, n := range wantNodes {
		found := false
		for _, have := range g.Nodes {
			if have == n {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("node %q missing from %v", n, g.Nodes)
		}
	}

	wantEdges := map[[2]string]bool{
		{"mymod", "base:recomp_printf"}: false,
		{"base:recomp_printf", "base"}:  false,
		{"framework:init", "on_init"}:   false,
		{"framework", "framework:init"}: false,
		{"mymod", "event:menu_open"}:    false,
		{"mymod", "export:draw_menu"}:   false,
	}
	for _, e := range g.Edges {
		key := [2]string{e.Caller, e.Callee}
		if _, ok := wantEdges[key]; ok {
			wantEdges[key] = true
		}
	}
	for edge, seen := range wantEdges {
		if !seen {
			t.Errorf("edge %v -> %v missing", edge[0], edge[1])
		}
	}
}

func TestBuildDedup(t *testing.T) {
	ctx := graphContext(t)
	// A second import from the same dependency repeats the import->dep edge.
	if !ctx.AddImportSymbol("recomp_exit", 1) {
		t.Fatal("AddImportSymbol")
	}
	g := Build("mymod", ctx)

	seen := map[[2]string]int{}
	for _, e := range g.Edges {
		seen[[2]string{e.Caller, e.Callee}]++
	}
	for edge, n := range seen {
		if n > 1 {
			t.Errorf("edge %v repeated %d times", edge, n)
		}
	}
}

func TestDOT(t *testing.T) {
	out := DOT("mymod", graphContext(t))
	if !strings.Contains(out, "digraph") {
		t.Errorf("not DOT output: %q", out)
	}
	for _, want := range []string{"mymod", "framework:init", "export:draw_menu"} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}
