package precedence

import (
	"sort"

	"github.com/fabfab/contract-agent/contract"
)

// graph holds the override edges between entries of one clause view. An edge
// from i to j means entry i overrides entry j for the clause.
type graph struct {
	edges [][]int
	// overriding marks edges backed by an Override record. Edges that only
	// come from a same-group supersedes link do not lift depth.
	overriding map[[2]int]bool
	component  []int
	cyclic     map[int]bool
	depth      []int
}

func buildGraph(entries []contract.ClauseEntry, overrides []contract.Override, clause string) *graph {
	n := len(entries)
	g := &graph{edges: make([][]int, n), overriding: make(map[[2]int]bool)}

	pos := make(map[string]int, n)
	for i, e := range entries {
		pos[e.Document.ID] = i
	}

	seen := make(map[[2]int]bool)
	add := func(from, to int) bool {
		if from == to || seen[[2]int{from, to}] {
			return false
		}
		seen[[2]int{from, to}] = true
		g.edges[from] = append(g.edges[from], to)
		return true
	}

	for _, o := range overrides {
		if !o.Covers(clause) {
			continue
		}
		from, okFrom := pos[o.OverridingID]
		to, okTo := pos[o.OverriddenID]
		if okFrom && okTo && add(from, to) {
			g.overriding[[2]int{from, to}] = true
		}
	}
	// A supersedes link inside one group retires the older document for every
	// clause. The newer one inherits the older one's depth but gains none.
	for i, e := range entries {
		if e.Document.Supersedes == "" {
			continue
		}
		if j, ok := pos[e.Document.Supersedes]; ok && entries[j].Document.Group == e.Document.Group {
			add(i, j)
		}
	}
	for i := range g.edges {
		sort.Ints(g.edges[i])
	}

	g.strongComponents()
	g.computeDepth()
	return g
}

// strongComponents labels entries with Tarjan's algorithm. Components with
// more than one member are contradictory override cycles.
func (g *graph) strongComponents() {
	n := len(g.edges)
	g.component = make([]int, n)
	g.cyclic = make(map[int]bool)

	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		stack   []int
		counter int
		next    int
	)

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if index[w] < 0 {
				visit(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			size := 0
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				g.component[w] = next
				size++
				if w == v {
					break
				}
			}
			if size > 1 {
				g.cyclic[next] = true
			}
			next++
		}
	}

	for v := 0; v < n; v++ {
		if index[v] < 0 {
			visit(v)
		}
	}
}

// computeDepth assigns each entry the length of the longest override chain
// below its component. Cyclic components count as at least one level since
// their members do override something. Supersedes-only edges carry the
// target's depth without adding a level.
func (g *graph) computeDepth() {
	n := len(g.edges)
	compDepth := make(map[int]int)
	done := make(map[int]bool)

	members := make(map[int][]int)
	for v := 0; v < n; v++ {
		members[g.component[v]] = append(members[g.component[v]], v)
	}

	var depthOf func(c int) int
	depthOf = func(c int) int {
		if done[c] {
			return compDepth[c]
		}
		d := 0
		if g.cyclic[c] {
			d = 1
		}
		for _, v := range members[c] {
			for _, w := range g.edges[v] {
				if g.component[w] == c {
					continue
				}
				below := depthOf(g.component[w])
				if g.overriding[[2]int{v, w}] {
					below++
				}
				if below > d {
					d = below
				}
			}
		}
		done[c] = true
		compDepth[c] = d
		return d
	}

	g.depth = make([]int, n)
	for v := 0; v < n; v++ {
		g.depth[v] = depthOf(g.component[v])
	}
}

// cycles returns the members of each contradictory component, ordered by
// their lowest entry index.
func (g *graph) cycles() [][]int {
	byComp := make(map[int][]int)
	for v, c := range g.component {
		if g.cyclic[c] {
			byComp[c] = append(byComp[c], v)
		}
	}
	out := make([][]int, 0, len(byComp))
	for _, m := range byComp {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// overriders returns the entries with a direct edge into v.
func (g *graph) overriders(v int) []int {
	var out []int
	for from, targets := range g.edges {
		for _, to := range targets {
			if to == v {
				out = append(out, from)
			}
		}
	}
	return out
}
