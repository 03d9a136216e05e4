// Package hierarchy orders a flat parent/child item set into dependency-safe
// levels for batch processing.
package hierarchy

import (
	"fmt"
	"sort"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
)

// Sorted is the result of leveling a course tree.
type Sorted struct {
	// Levels holds item ids such that every item's parent sits in a strictly
	// earlier level. Level 0 is always exactly the root.
	Levels [][]string
	// Children maps a parent id to its ordered child ids.
	Children map[string][]string
	// Items indexes the input set by id.
	Items map[string]*content.Item
}

// Sort levels the item set breadth-first from rootID. It fails with a
// structural error instead of looping when the set is not a single-rooted
// tree (orphaned parent references, cycles, duplicate ids).
func Sort(items []*content.Item, rootID string) (*Sorted, error) {
	byID := make(map[string]*content.Item, len(items))
	for _, it := range items {
		if it.ID == "" {
			return nil, errors.StructuralError("item without id in hierarchy input")
		}
		if _, dup := byID[it.ID]; dup {
			return nil, errors.StructuralError("duplicate item id in hierarchy input").
				WithContext("item_id", it.ID)
		}
		byID[it.ID] = it
	}
	if _, ok := byID[rootID]; !ok {
		return nil, errors.StructuralError("declared root missing from item set").
			WithContext("root_id", rootID)
	}

	children := make(map[string][]string)
	for _, it := range items {
		if it.ID == rootID {
			continue
		}
		children[it.ParentID] = append(children[it.ParentID], it.ID)
	}
	for parent := range children {
		orderSiblings(children[parent], byID)
	}

	placed := map[string]bool{rootID: true}
	levels := [][]string{{rootID}}
	remaining := len(items) - 1
	prev := levels[0]
	for remaining > 0 {
		var next []string
		for _, parent := range prev {
			for _, child := range children[parent] {
				next = append(next, child)
				placed[child] = true
			}
		}
		if len(next) == 0 {
			// Remaining items reference parents that were never placed:
			// either an absent parent id or a cycle.
			var stranded []string
			for _, it := range items {
				if !placed[it.ID] {
					stranded = append(stranded, it.ID)
				}
			}
			sort.Strings(stranded)
			return nil, errors.StructuralError(
				fmt.Sprintf("%d items unreachable from root", len(stranded))).
				WithContext("root_id", rootID).
				WithContext("stranded", stranded)
		}
		levels = append(levels, next)
		remaining -= len(next)
		prev = next
	}
	return &Sorted{Levels: levels, Children: children, Items: byID}, nil
}

// orderSiblings sorts sibling ids by explicit sort order when present,
// preserving input order otherwise. The comparator treats an absent order as
// equal to everything, so an unordered sibling never moves and explicit
// orders do not reorder across it. When explicit and absent orders mix
// within one sibling set the set effectively keeps its input order; only a
// fully ordered set sorts completely. This is intentional, not a sort bug.
func orderSiblings(ids []string, byID map[string]*content.Item) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := byID[ids[i]].SortOrder, byID[ids[j]].SortOrder
		if a == nil || b == nil {
			return false
		}
		return *a < *b
	})
}
