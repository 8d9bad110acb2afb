// Package term declares the well-known concepts and patterns that default
// coordinates, the language calculator and the navigation engine refer to.
//
// Each term's UUID is name-based, so every store maps the same term to the
// same public identity.
package term

import "github.com/google/uuid"

// Domain for term identities.
const DomainTerm = "stampview/term/v1"

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(DomainTerm))

// Term is a well-known concept or pattern identified by a stable UUID.
type Term struct {
	Name string
	UUID uuid.UUID
}

// String implements fmt.Stringer.
func (t Term) String() string { return t.Name }

var registry = map[string]Term{}

// All lists every declared term in declaration order.
var All []Term

func define(name string) Term {
	t := Term{Name: name, UUID: uuid.NewSHA1(namespace, []byte(name))}
	registry[name] = t
	All = append(All, t)
	return t
}

// ByName returns the declared term with the given name.
func ByName(name string) (Term, bool) {
	t, ok := registry[name]
	return t, ok
}

// Paths.
var (
	PrimordialPath  = define("primordial path")
	MasterPath      = define("master path")
	DevelopmentPath = define("development path")
	SandboxPath     = define("sandbox path")
)

// Modules and authors.
var (
	PrimordialModule  = define("primordial module")
	CoreModule        = define("core module")
	DevelopmentModule = define("development module")
	UserAuthor        = define("user")
)

// Patterns.
var (
	DescriptionPattern        = define("description pattern")
	USDialectPattern          = define("US english dialect pattern")
	GBDialectPattern          = define("GB english dialect pattern")
	InferredNavigationPattern = define("inferred navigation pattern")
	StatedNavigationPattern   = define("stated navigation pattern")
	PathOriginsPattern        = define("path origins pattern")
	VertexSortPattern         = define("vertex sort pattern")
	StatedDefinitionPattern   = define("stated definition pattern")
	InferredDefinitionPattern = define("inferred definition pattern")
	ConceptMembershipPattern  = define("concept membership pattern")
)

// Languages, description types, acceptability and case significance.
var (
	EnglishLanguage    = define("english language")
	SpanishLanguage    = define("spanish language")
	RegularName        = define("regular name description type")
	FullyQualifiedName = define("fully qualified name description type")
	Definition         = define("definition description type")
	Preferred          = define("preferred")
	Acceptable         = define("acceptable")
	NotCaseSensitive   = define("description not case sensitive")
)

// Relationship meanings, field meanings and logic.
var (
	IsA                  = define("is a")
	PartOf               = define("part of")
	ChildrenField        = define("children field")
	ParentsField         = define("parents field")
	SortOrderField       = define("sort order field")
	OriginPathField      = define("origin path field")
	OriginTimeField      = define("origin time field")
	LanguageField        = define("language field")
	TextField            = define("text field")
	CaseField            = define("case significance field")
	DescriptionTypeField = define("description type field")
	AcceptabilityField   = define("acceptability field")
	DefaultClassifier    = define("default classifier")
	ELProfile            = define("EL++ profile")
	Root                 = define("root")
)
