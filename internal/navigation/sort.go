package navigation

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/entity"
)

// sortVertices orders related vertices of nid. Vertices named by the first
// sort pattern with a visible ordering on nid come first, in that order;
// the rest follow in natural order of their description text, then nid.
func (c *Calculator) sortVertices(nid int32, related []int32) ([]int32, error) {
	rank, err := c.customOrder(nid)
	if err != nil {
		return nil, err
	}

	type vertex struct {
		nid  int32
		rank int
		text string
	}
	vs := make([]vertex, len(related))
	for i, id := range related {
		r, ok := rank[id]
		if !ok {
			r = len(rank)
		}
		vs[i] = vertex{nid: id, rank: r}
		if c.language != nil {
			text, err := c.language.DescriptionText(id)
			if err != nil {
				return nil, err
			}
			vs[i].text = text
		}
	}

	// Collators are not safe for concurrent use.
	col := collate.New(c.collationTag(), collate.Loose, collate.Numeric)
	slices.SortStableFunc(vs, func(a, b vertex) int {
		return cmp.Or(
			cmp.Compare(a.rank, b.rank),
			col.CompareString(a.text, b.text),
			cmp.Compare(a.nid, b.nid),
		)
	})

	out := make([]int32, len(vs))
	for i, v := range vs {
		out[i] = v.nid
	}
	return out, nil
}

// customOrder returns the rank of each vertex listed by the first sort
// pattern in priority order that has a visible ordering semantic on nid.
func (c *Calculator) customOrder(nid int32) (map[int32]int, error) {
	patterns := c.view.Navigation.VertexSortPatternNids
	if patterns == nil {
		return nil, nil
	}
	for i := 0; i < patterns.Len(); i++ {
		semantics, err := c.store.SemanticNidsForComponentOfPattern(nid, patterns.Get(i))
		if err != nil {
			return nil, err
		}
		for _, snid := range semantics {
			latest, err := c.stamps.Latest(snid)
			if err != nil {
				return nil, err
			}
			v, ok := latest.Get()
			if !ok {
				continue
			}
			list, ok := v.Field(0).(entity.FieldIDList)
			if !ok || list.List == nil {
				continue
			}
			rank := make(map[int32]int, list.Len())
			for j, id := range list.ToArray() {
				if _, seen := rank[id]; !seen {
					rank[id] = j
				}
			}
			return rank, nil
		}
	}
	return nil, nil
}

func (c *Calculator) collationTag() language.Tag {
	if c.locale != language.Und {
		return c.locale
	}
	if len(c.view.Languages) > 0 && c.view.Languages[0].Tag != language.Und {
		return c.view.Languages[0].Tag
	}
	return language.English
}
