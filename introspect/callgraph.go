package introspect

import (
	"slices"

	"github.com/pithecene-io/suipack/movebin"
	"github.com/pithecene-io/suipack/types"
)

// ModuleCallGraph maps each function defined in a module to the sorted,
// deduplicated set of functions it calls directly.
type ModuleCallGraph struct {
	ModuleName string              `json:"moduleName"`
	CallGraph  map[string][]string `json:"callGraph"`
}

// PackageCallGraph is the content of call_graph.json.
type PackageCallGraph struct {
	PackageID        types.Address     `json:"packageId"`
	ModuleCallGraphs []ModuleCallGraph `json:"moduleCallGraphs"`
}

// CallGraph builds the call graph of one module.
//
// Every defined function is a key, natives included with no edges. Call and
// CallGeneric both produce an edge named address::module::function; type
// arguments of a generic call are dropped, so all instantiations of a
// callee collapse into one edge. The address is the one embedded in the
// callee's module handle; the package linkage table is not consulted.
func CallGraph(view ModuleView) map[string][]string {
	defs := view.FunctionDefs()
	sets := make(map[string]map[string]struct{}, len(defs))

	for i := range defs {
		def := &defs[i]
		caller := view.IdentifierAt(view.FunctionHandleAt(def.Handle).Name)
		edges := make(map[string]struct{})
		sets[caller] = edges

		for _, ins := range view.InstructionsOf(def) {
			var handle movebin.FunctionHandleIndex
			switch ins.Op {
			case movebin.OpCall:
				handle = movebin.FunctionHandleIndex(ins.Index)
			case movebin.OpCallGeneric:
				handle = view.FunctionInstantiationAt(movebin.FunctionInstIndex(ins.Index)).Handle
			default:
				continue
			}
			callee := view.FunctionHandleAt(handle)
			edges[qualifiedName(view, callee.Module, callee.Name)] = struct{}{}
		}
	}

	out := make(map[string][]string, len(sets))
	for caller, edges := range sets {
		callees := make([]string, 0, len(edges))
		for callee := range edges {
			callees = append(callees, callee)
		}
		slices.Sort(callees)
		out[caller] = callees
	}
	return out
}

// CallGraph builds the call_graph.json document, modules in name order.
func (a *Analysis) CallGraph() *PackageCallGraph {
	g := &PackageCallGraph{
		PackageID:        a.Package.ID,
		ModuleCallGraphs: make([]ModuleCallGraph, 0, len(a.Modules)),
	}
	for _, m := range a.Modules {
		g.ModuleCallGraphs = append(g.ModuleCallGraphs, ModuleCallGraph{
			ModuleName: m.Name,
			CallGraph:  CallGraph(m.Module),
		})
	}
	return g
}

// BuildPackageCallGraph decodes pkg and builds its call graph.
func BuildPackageCallGraph(pkg *types.Package) (*PackageCallGraph, error) {
	a, err := Analyze(pkg)
	if err != nil {
		return nil, err
	}
	return a.CallGraph(), nil
}
