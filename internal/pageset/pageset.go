package pageset

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// PageSet is the organize-tool state: 0-based page indices of one source
// document in output order, with optional per-page rotation.
type PageSet struct {
	list      *List[int]
	total     int
	rotations map[int]int
}

// New covers every page of a document in source order.
func New(pageCount int) *PageSet {
	order := make([]int, pageCount)
	for i := range order {
		order[i] = i
	}
	l, _ := NewList(order...)
	return &PageSet{list: l, total: pageCount, rotations: map[int]int{}}
}

// FromOrder restores an explicit order; indices must be unique and in range.
func FromOrder(pageCount int, order []int) (*PageSet, error) {
	for _, p := range order {
		if p < 0 || p >= pageCount {
			return nil, fmt.Errorf("%w: page %d of %d", ErrUnknown, p, pageCount)
		}
	}
	l, err := NewList(order...)
	if err != nil {
		return nil, err
	}
	return &PageSet{list: l, total: pageCount, rotations: map[int]int{}}, nil
}

func (s *PageSet) Len() int         { return s.list.Len() }
func (s *PageSet) SourcePages() int { return s.total }
func (s *PageSet) PageOrder() []int { return s.list.Items() }

// Move drops page dragged before page before (nil: at the end).
func (s *PageSet) Move(dragged int, before *int) { s.list.Move(dragged, before) }

// Remove drops a page from the output. The last remaining page cannot be removed.
func (s *PageSet) Remove(page int) error {
	if s.list.Len() <= 1 {
		return fmt.Errorf("%w: at least one page must remain", ErrTooFew)
	}
	if err := s.list.Remove(page); err != nil {
		return err
	}
	delete(s.rotations, page)
	return nil
}

// Rotate adds deg (a multiple of 90) to a page's rotation.
func (s *PageSet) Rotate(page, deg int) error {
	if deg%90 != 0 {
		return fmt.Errorf("rotation must be a multiple of 90, got %d", deg)
	}
	if !s.list.Contains(page) {
		return fmt.Errorf("%w: page %d", ErrUnknown, page)
	}
	r := ((s.rotations[page]+deg)%360 + 360) % 360
	if r == 0 {
		delete(s.rotations, page)
	} else {
		s.rotations[page] = r
	}
	return nil
}

func (s *PageSet) Rotation(page int) int { return s.rotations[page] }

func (s *PageSet) Labels() []Label[int] { return s.list.Labels() }

// Params serializes page_order (and rotations when any are set).
func (s *PageSet) Params() url.Values {
	v := url.Values{}
	order, _ := json.Marshal(s.list.Items())
	v.Set("page_order", string(order))
	if len(s.rotations) > 0 {
		keys := make([]int, 0, len(s.rotations))
		for k := range s.rotations {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q:%d", strconv.Itoa(k), s.rotations[k]))
		}
		v.Set("rotations", "{"+strings.Join(parts, ",")+"}")
	}
	return v
}

// ParseSelection expands "all", "" or a list like "1-3,5" into sorted,
// unique 1-based page numbers within [1, pageCount].
func ParseSelection(sel string, pageCount int) ([]int, error) {
	sel = strings.TrimSpace(strings.ToLower(sel))
	if sel == "" || sel == "all" {
		out := make([]int, pageCount)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}
	seen := map[int]bool{}
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			first, last = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		a, err1 := strconv.Atoi(first)
		b, err2 := strconv.Atoi(last)
		if err1 != nil || err2 != nil || a < 1 || b < a || b > pageCount {
			return nil, fmt.Errorf("%w: page selection %q (document has %d pages)", ErrUnknown, part, pageCount)
		}
		for p := a; p <= b; p++ {
			seen[p] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: empty page selection", ErrTooFew)
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}
