package program

import (
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/schema"
)

// Summary renders a table of the program's inputs and nodes in execution
// order, with input sources, output schema titles and per-module variable
// counts.
func (p *Program) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Program: %s\n", p.name)

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tINPUTS\tOUTPUT\tVARIABLES")

	for _, in := range p.inputs {
		fmt.Fprintf(w, "%s\tInput\t-\t%s\t0\n", in.Name(), schemaTitle(in.Schema()))
	}

	for _, node := range p.nodes {
		m := node.Module()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			m.Name(),
			moduleType(m),
			strings.Join(p.sourceNames(node), ", "),
			outputTitles(node),
			len(m.Variables()),
		)
	}

	w.Flush()

	variables := p.Variables()
	trainable := 0
	for _, v := range variables {
		if v.Trainable() {
			trainable++
		}
	}

	fmt.Fprintf(&b, "Total variables: %d (trainable: %d)\n", len(variables), trainable)

	return b.String()
}

// moduleType reports the concrete implementation name, e.g. "Generator".
func moduleType(m core.Module) string {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// sourceNames lists where a node's inputs come from: declared input symbols
// by name, upstream nodes by module name.
func (p *Program) sourceNames(node *core.Node) []string {
	var names []string

	seen := map[string]bool{}
	for _, sym := range node.Inputs() {
		name := ""
		if _, ok := p.inputPos[sym]; ok {
			name = sym.Name()
		} else {
			name = sym.Origin().Module().Name()
		}

		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}

func outputTitles(node *core.Node) string {
	titles := make([]string, 0, len(node.Outputs()))
	for _, out := range node.Outputs() {
		titles = append(titles, schemaTitle(out.Schema()))
	}
	return strings.Join(titles, ", ")
}

// schemaTitle names a schema for display, falling back to its type.
func schemaTitle(s *schema.Schema) string {
	if s == nil || s.Title == "" {
		return "object"
	}
	return s.Title
}
