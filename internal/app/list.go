package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// List writes the registered unit kinds and programs to w.
func (a *App) List(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNITS")
	for _, def := range a.registry.Units() {
		fmt.Fprintf(tw, "  %s\t%s\n", def.Kind, def.Description)
	}
	fmt.Fprintln(tw, "\nPROGRAMS")
	for _, p := range a.registry.Programs() {
		vars := make([]string, 0, len(p.Variables))
		for name := range p.Variables {
			vars = append(vars, name)
		}
		sort.Strings(vars)
		line := p.Description
		if len(vars) > 0 {
			line += " (variables: " + strings.Join(vars, ", ") + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", p.Name, line)
	}
	return tw.Flush()
}

