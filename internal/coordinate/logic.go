package coordinate

// LogicCoordinate names the classifier and the patterns holding axioms,
// membership and navigation for description-logic content.
type LogicCoordinate struct {
	ClassifierNid                int32
	DescriptionLogicProfileNid   int32
	InferredAxiomsPatternNid     int32
	StatedAxiomsPatternNid       int32
	ConceptMemberPatternNid      int32
	StatedNavigationPatternNid   int32
	InferredNavigationPatternNid int32
	RootNid                      int32
}

// Key returns the value hash of the coordinate.
func (c LogicCoordinate) Key() string {
	return key("logic", c.canonical())
}

func (c LogicCoordinate) canonical() map[string]any {
	return map[string]any{
		"classifier":         c.ClassifierNid,
		"profile":            c.DescriptionLogicProfileNid,
		"inferredAxioms":     c.InferredAxiomsPatternNid,
		"statedAxioms":       c.StatedAxiomsPatternNid,
		"conceptMember":      c.ConceptMemberPatternNid,
		"statedNavigation":   c.StatedNavigationPatternNid,
		"inferredNavigation": c.InferredNavigationPatternNid,
		"root":               c.RootNid,
	}
}
