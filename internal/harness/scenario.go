package harness

import (
	"bytes"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stampview/internal/errors"
)

// Scenario defines a conformance scenario: a fixture, a flow of
// transaction and query steps, and assertions over the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// View shapes the navigation queries of the flow.
	View ViewSpec `yaml:"view,omitempty"`

	// Setup builds the fixture. Setup steps are traced but carry no
	// expectations.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and the final store content.
	Assertions []Assertion `yaml:"assertions"`
}

// ViewSpec selects the navigation coordinate queries run under. The
// stamp, language and edit coordinates come from the default view preset.
type ViewSpec struct {
	// Patterns are navigation pattern names: is_a, part_of. Defaults to
	// is_a.
	Patterns []string `yaml:"patterns,omitempty"`

	// VertexStates filter vertices. Defaults to active and inactive.
	VertexStates []string `yaml:"vertex_states,omitempty"`

	// StampStates replace the view's allowed stamp states.
	StampStates []string `yaml:"stamp_states,omitempty"`

	// Sort orders parents and children by sort pattern and description
	// text. Unsorted results are reported in name order.
	Sort bool `yaml:"sort,omitempty"`
}

// Step is one fixture, transaction or query operation. Which fields apply
// depends on Op.
type Step struct {
	Op string `yaml:"op"`

	Name        string              `yaml:"name,omitempty"`
	State       string              `yaml:"state,omitempty"`
	Time        *int64              `yaml:"time,omitempty"`
	Concept     string              `yaml:"concept,omitempty"`
	Concepts    []string            `yaml:"concepts,omitempty"`
	Ancestor    string              `yaml:"ancestor,omitempty"`
	Pattern     string              `yaml:"pattern,omitempty"`
	Stamp       string              `yaml:"stamp,omitempty"`
	Edges       map[string][]string `yaml:"edges,omitempty"`
	Text        string              `yaml:"text,omitempty"`
	Order       []string            `yaml:"order,omitempty"`
	Transaction string              `yaml:"transaction,omitempty"`

	// Expect is the expected query result.
	Expect any `yaml:"expect,omitempty"`

	// ExpectError is the expected integrity code, or "error".
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the final store content.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_state.
	Type string `yaml:"type"`

	// Op is the traced operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are matched as a subset of the traced args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Concept and Expect describe the latest version (final_state).
	// Expect keys: visible, state, time.
	Concept string         `yaml:"concept,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Operation names.
const (
	OpStamp     = "stamp"
	OpConcept   = "concept"
	OpRelate    = "relate"
	OpDescribe  = "describe"
	OpSortOrder = "sort_order"

	OpOpen    = "open"
	OpTxStamp = "tx_stamp"
	OpCommit  = "commit"
	OpCancel  = "cancel"

	OpParents      = "parents"
	OpChildren     = "children"
	OpAncestors    = "ancestors"
	OpDescendants  = "descendants"
	OpIsDescendent = "is_descendent"
	OpFindCycle    = "find_cycle"
	OpName         = "name"
	OpLatest       = "latest"
)

// Navigation pattern names.
const (
	PatternIsA    = "is_a"
	PatternPartOf = "part_of"
)

var queryOps = []string{
	OpParents, OpChildren, OpAncestors, OpDescendants,
	OpIsDescendent, OpFindCycle, OpName, OpLatest,
}

func isQuery(op string) bool {
	return slices.Contains(queryOps, op)
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	for _, p := range s.View.Patterns {
		if p != PatternIsA && p != PatternPartOf {
			return errors.Newf("view: unknown pattern %q", p)
		}
	}

	for i, step := range s.Setup {
		if isQuery(step.Op) {
			return errors.Newf("setup[%d]: query %q belongs in flow", i, step.Op)
		}
		if err := validateStep(step); err != nil {
			return errors.Wrapf(err, "setup[%d]", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return errors.Wrapf(err, "flow[%d]", i)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each operation needs.
func validateStep(step Step) error {
	if (step.Expect != nil || step.ExpectError != "") && !isQuery(step.Op) {
		return errors.Newf("%s: only queries take expectations", step.Op)
	}

	var missing string
	switch step.Op {
	case OpStamp:
		switch {
		case step.Name == "":
			missing = "name"
		case step.State == "":
			missing = "state"
		case step.Time == nil:
			missing = "time"
		}
	case OpConcept:
		switch {
		case len(step.Concepts) == 0:
			missing = "concepts"
		case step.Stamp == "":
			missing = "stamp"
		}
	case OpRelate:
		switch {
		case step.Pattern == "":
			missing = "pattern"
		case step.Stamp == "":
			missing = "stamp"
		case len(step.Edges) == 0:
			missing = "edges"
		}
		if missing == "" && step.Pattern != PatternIsA && step.Pattern != PatternPartOf {
			return errors.Newf("relate: unknown pattern %q", step.Pattern)
		}
	case OpDescribe:
		switch {
		case step.Concept == "":
			missing = "concept"
		case step.Text == "":
			missing = "text"
		case step.Stamp == "":
			missing = "stamp"
		}
	case OpSortOrder:
		switch {
		case step.Concept == "":
			missing = "concept"
		case len(step.Order) == 0:
			missing = "order"
		case step.Stamp == "":
			missing = "stamp"
		}
	case OpOpen, OpCommit, OpCancel:
		if step.Transaction == "" {
			missing = "transaction"
		}
	case OpTxStamp:
		switch {
		case step.Transaction == "":
			missing = "transaction"
		case step.Name == "":
			missing = "name"
		case step.State == "":
			missing = "state"
		}
	case OpParents, OpChildren, OpAncestors, OpDescendants, OpFindCycle, OpName, OpLatest:
		if step.Concept == "" {
			missing = "concept"
		}
	case OpIsDescendent:
		switch {
		case step.Concept == "":
			missing = "concept"
		case step.Ancestor == "":
			missing = "ancestor"
		}
	case "":
		return errors.New("op is required")
	default:
		return errors.Newf("unknown op %q", step.Op)
	}
	if missing != "" {
		return errors.Newf("%s: %s is required", step.Op, missing)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return errors.Newf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return errors.Newf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return errors.Newf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return errors.Newf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return errors.Newf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Concept == "" {
			return errors.Newf("assertions[%d]: concept is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return errors.Newf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return errors.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// args returns the fields of step that apply to its op, for the trace.
func (s Step) args() map[string]any {
	args := map[string]any{}
	put := func(key, v string) {
		if v != "" {
			args[key] = v
		}
	}
	put("name", s.Name)
	put("state", s.State)
	put("concept", s.Concept)
	put("ancestor", s.Ancestor)
	put("pattern", s.Pattern)
	put("stamp", s.Stamp)
	put("text", s.Text)
	put("transaction", s.Transaction)
	if s.Time != nil {
		args["time"] = *s.Time
	}
	if len(s.Concepts) > 0 {
		args["concepts"] = s.Concepts
	}
	if len(s.Order) > 0 {
		args["order"] = s.Order
	}
	if len(s.Edges) > 0 {
		edges := make(map[string]any, len(s.Edges))
		for child, parents := range s.Edges {
			edges[child] = parents
		}
		args["edges"] = edges
	}
	return args
}
