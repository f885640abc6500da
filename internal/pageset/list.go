// Package pageset keeps the user-chosen order of pages (organize) and files
// (merge) and serializes it for submission.
package pageset

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
)

var (
	ErrDuplicate = errors.New("duplicate reference")
	ErrUnknown   = errors.New("unknown reference")
	ErrTooFew    = errors.New("too few items")
)

// Reorder removes dragged and reinserts it immediately before the item
// pointed to by before, or at the end when before is nil. Dropping an item
// onto itself or its current next sibling returns an equal sequence. Fewer
// than two items, or an unknown dragged/before item, is a no-op.
func Reorder[T comparable](current []T, dragged T, before *T) []T {
	out := append([]T(nil), current...)
	if len(out) < 2 {
		return out
	}
	from := lo.IndexOf(out, dragged)
	if from < 0 || (before != nil && *before == dragged) {
		return out
	}
	rest := append(append([]T(nil), out[:from]...), out[from+1:]...)
	if before == nil {
		return append(rest, dragged)
	}
	to := lo.IndexOf(rest, *before)
	if to < 0 {
		return out
	}
	res := make([]T, 0, len(out))
	res = append(res, rest[:to]...)
	res = append(res, dragged)
	return append(res, rest[to:]...)
}

// Label pairs an item with its 1-based display position.
type Label[T comparable] struct {
	Item     T      `json:"item"`
	Position int    `json:"position"`
	Text     string `json:"label"`
}

// List is an ordered collection with no duplicates.
type List[T comparable] struct {
	items []T
}

// NewList rejects duplicate items.
func NewList[T comparable](items ...T) (*List[T], error) {
	if dups := lo.FindDuplicates(items); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, dups)
	}
	return &List[T]{items: append([]T(nil), items...)}, nil
}

func (l *List[T]) Len() int { return len(l.items) }

// Items returns a copy of the current order.
func (l *List[T]) Items() []T { return append([]T(nil), l.items...) }

func (l *List[T]) Contains(item T) bool { return lo.Contains(l.items, item) }

func (l *List[T]) Add(item T) error {
	if l.Contains(item) {
		return fmt.Errorf("%w: %v", ErrDuplicate, item)
	}
	l.items = append(l.items, item)
	return nil
}

func (l *List[T]) Remove(item T) error {
	i := lo.IndexOf(l.items, item)
	if i < 0 {
		return fmt.Errorf("%w: %v", ErrUnknown, item)
	}
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	return nil
}

// Move applies a drag gesture; see Reorder.
func (l *List[T]) Move(dragged T, before *T) {
	l.items = Reorder(l.items, dragged, before)
}

// Labels are derived from position on every call, so they cannot drift.
func (l *List[T]) Labels() []Label[T] {
	return lo.Map(l.items, func(item T, i int) Label[T] {
		return Label[T]{Item: item, Position: i + 1, Text: strconv.Itoa(i + 1)}
	})
}
