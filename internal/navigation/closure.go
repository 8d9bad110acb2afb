package navigation

import (
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

// AncestorsOf returns the transitive parents of nid. nid itself is only
// included when it lies on a cycle.
func (c *Calculator) AncestorsOf(nid int32) (intid.Set, error) {
	return c.closure(nid, c.UnsortedParentsOf)
}

// DescendantsOf returns the transitive children of nid. nid itself is only
// included when it lies on a cycle.
func (c *Calculator) DescendantsOf(nid int32) (intid.Set, error) {
	return c.closure(nid, c.UnsortedChildrenOf)
}

// KindOf returns nid and all of its descendants.
func (c *Calculator) KindOf(nid int32) (intid.Set, error) {
	d, err := c.DescendantsOf(nid)
	if err != nil {
		return nil, err
	}
	return d.With(nid), nil
}

// IsDescendentOf reports whether ancestor is reachable from nid through
// parents. The walk stops at the first hit.
func (c *Calculator) IsDescendentOf(nid, ancestor int32) (bool, error) {
	found := false
	_, err := c.walk(nid, c.UnsortedParentsOf, func(id int32) bool {
		found = id == ancestor
		return !found
	})
	return found, err
}

func (c *Calculator) closure(nid int32, next func(int32) (intid.Set, error)) (intid.Set, error) {
	visited, err := c.walk(nid, next, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]int32, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	return intid.SetOf(ids...), nil
}

// walk expands vertices reachable from start with an explicit stack. Each
// vertex is expanded once. visit, when set, sees each newly reached vertex
// and stops the walk by returning false.
func (c *Calculator) walk(start int32, next func(int32) (intid.Set, error), visit func(int32) bool) (map[int32]struct{}, error) {
	visited := map[int32]struct{}{}
	stack := []int32{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		related, err := next(cur)
		if err != nil {
			return nil, err
		}
		stop := false
		related.ForEach(func(id int32) {
			if stop {
				return
			}
			if _, seen := visited[id]; seen {
				return
			}
			visited[id] = struct{}{}
			if visit != nil && !visit(id) {
				stop = true
				return
			}
			stack = append(stack, id)
		})
		if stop {
			break
		}
	}
	return visited, nil
}

// FindCycle searches the ancestors of nid for a cycle and returns one as a
// path that starts and ends on the same vertex, or nil when the reachable
// graph is acyclic.
func (c *Calculator) FindCycle(nid int32) ([]int32, error) {
	const (
		onPath = 1
		done   = 2
	)
	type frame struct {
		nid     int32
		parents []int32
		next    int
	}
	state := map[int32]int{}
	var path []frame

	push := func(id int32) error {
		parents, err := c.UnsortedParentsOf(id)
		if err != nil {
			return err
		}
		state[id] = onPath
		path = append(path, frame{nid: id, parents: parents.ToArray()})
		return nil
	}
	if err := push(nid); err != nil {
		return nil, err
	}
	for len(path) > 0 {
		top := &path[len(path)-1]
		if top.next == len(top.parents) {
			state[top.nid] = done
			path = path[:len(path)-1]
			continue
		}
		p := top.parents[top.next]
		top.next++
		switch state[p] {
		case onPath:
			var cycle []int32
			for i := range path {
				if path[i].nid == p || cycle != nil {
					cycle = append(cycle, path[i].nid)
				}
			}
			return append(cycle, p), nil
		case done:
			continue
		}
		if err := push(p); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// CheckAcyclic returns an integrity error when FindCycle finds a cycle
// above nid.
func (c *Calculator) CheckAcyclic(nid int32) error {
	cycle, err := c.FindCycle(nid)
	if err != nil || cycle == nil {
		return err
	}
	return c.integrity(errors.CodeCycle, cycle[0], 0, "navigation cycle %v", cycle)
}
