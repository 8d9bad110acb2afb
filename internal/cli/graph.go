package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/navigation"
)

// GraphOptions holds flags shared by the graph subcommands.
type GraphOptions struct {
	*RootOptions
	View       string
	Navigation string
	Sort       bool
}

// Vertex is one vertex of a graph query result.
type Vertex struct {
	Nid   int32    `json:"nid"`
	Name  string   `json:"name"`
	Types []string `json:"types,omitempty"`
}

// NewGraphCommand creates the graph command and its subcommands.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Walk the navigation graph of a view",
		Long: `Walk the navigation graph defined by a view's navigation patterns.

Concepts are given by nid or UUID. parents and children list direct
neighbours with the relationship types that connect them; ancestors and
descendants list transitive closures in nid order.`,
	}

	cmd.PersistentFlags().StringVar(&opts.View, "view", "default", "view preset")
	cmd.PersistentFlags().StringVar(&opts.Navigation, "navigation", "", "navigation preset replacing the view's")
	cmd.PersistentFlags().BoolVar(&opts.Sort, "sort", true, "sort neighbours by sort pattern and name")

	cmd.AddCommand(
		newEdgeCommand(opts, "parents", "List the parents of a concept", (*navigation.Calculator).ParentEdges),
		newEdgeCommand(opts, "children", "List the children of a concept", (*navigation.Calculator).ChildEdges),
		newClosureCommand(opts, "ancestors", "List every ancestor of a concept", (*navigation.Calculator).AncestorsOf),
		newClosureCommand(opts, "descendants", "List every descendant of a concept", (*navigation.Calculator).DescendantsOf),
		newCheckCommand(opts),
	)
	return cmd
}

// runGraphQuery runs fn against the navigation calculator of the selected
// view and prints the vertices it returns.
func runGraphQuery(opts *GraphOptions, cmd *cobra.Command, arg string,
	fn func(nav *navigation.Calculator, names *calc.LanguageCalculator, nid int32) ([]Vertex, error),
) error {
	p := newPrinter(opts.RootOptions, cmd)
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	nid, err := s.resolveConcept(arg)
	if err != nil {
		return p.Fail(ExitFailure, CodeNotFound, err.Error())
	}
	view, err := s.view(opts.View, opts.Navigation, opts.Sort)
	if err != nil {
		return p.Fail(ExitCommandError, CodeInvalidArg, err.Error())
	}
	nav, err := s.engine.NavigationCalculator(view)
	if err != nil {
		return failQuery(p, err)
	}
	names, err := s.engine.LanguageCalculator(view.Stamp, view.Languages...)
	if err != nil {
		return failQuery(p, err)
	}
	p.Debugf("%s %d under view %s", cmd.Name(), nid, opts.View)

	vertices, err := fn(nav, names, nid)
	if err != nil {
		return failQuery(p, err)
	}
	return p.Print(vertices, func(w io.Writer) { writeVertices(w, vertices) })
}

// failQuery reports integrity failures under their code.
func failQuery(p *Printer, err error) error {
	if code := errors.IntegrityCodeOf(err); code != "" {
		return p.Fail(ExitFailure, string(code), err.Error())
	}
	return p.Fail(ExitFailure, CodeInternalError, err.Error())
}

func newEdgeCommand(opts *GraphOptions, use, short string,
	edges func(*navigation.Calculator, int32) ([]navigation.Edge, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <nid|uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphQuery(opts, cmd, args[0], func(nav *navigation.Calculator, names *calc.LanguageCalculator, nid int32) ([]Vertex, error) {
				list, err := edges(nav, nid)
				if err != nil {
					return nil, err
				}
				out := make([]Vertex, 0, len(list))
				for _, e := range list {
					v, err := vertex(names, e.Nid)
					if err != nil {
						return nil, err
					}
					for _, t := range e.Types.ToArray() {
						name, err := names.DescriptionText(t)
						if err != nil {
							return nil, err
						}
						v.Types = append(v.Types, name)
					}
					out = append(out, v)
				}
				return out, nil
			})
		},
	}
}

func newClosureCommand(opts *GraphOptions, use, short string,
	closure func(*navigation.Calculator, int32) (intid.Set, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <nid|uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphQuery(opts, cmd, args[0], func(nav *navigation.Calculator, names *calc.LanguageCalculator, nid int32) ([]Vertex, error) {
				set, err := closure(nav, nid)
				if err != nil {
					return nil, err
				}
				return vertices(names, set.ToArray())
			})
		},
	}
}

func newCheckCommand(opts *GraphOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <nid|uuid>",
		Short: "Fail when the ancestors of a concept contain a cycle",
		Long: `Search the ancestors of a concept for a cycle.

Prints nothing and exits 0 when the graph above the concept is acyclic.
Otherwise prints one cycle, starting and ending on the same vertex, and
exits 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphQuery(opts, cmd, args[0], func(nav *navigation.Calculator, names *calc.LanguageCalculator, nid int32) ([]Vertex, error) {
				if err := nav.CheckAcyclic(nid); err == nil || !errors.IsIntegrity(err) {
					return []Vertex{}, err
				}
				cycle, err := nav.FindCycle(nid)
				if err != nil {
					return nil, err
				}
				path, err := vertices(names, cycle)
				if err != nil {
					return nil, err
				}
				parts := make([]string, len(path))
				for i, v := range path {
					parts[i] = v.Name
				}
				return nil, errors.NewIntegrityError(errors.CodeCycle, nid, 0, "cycle %s", strings.Join(parts, " -> "))
			})
		},
	}
}

func vertex(names *calc.LanguageCalculator, nid int32) (Vertex, error) {
	name, err := names.DescriptionText(nid)
	if err != nil {
		return Vertex{}, err
	}
	return Vertex{Nid: nid, Name: name}, nil
}

func vertices(names *calc.LanguageCalculator, nids []int32) ([]Vertex, error) {
	out := make([]Vertex, 0, len(nids))
	for _, nid := range nids {
		v, err := vertex(names, nid)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func writeVertices(w io.Writer, vs []Vertex) {
	for _, v := range vs {
		if len(v.Types) > 0 {
			fmt.Fprintf(w, "%d\t%s\t[%s]\n", v.Nid, v.Name, strings.Join(v.Types, ", "))
			continue
		}
		fmt.Fprintf(w, "%d\t%s\n", v.Nid, v.Name)
	}
}
