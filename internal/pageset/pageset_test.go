package pageset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestReorder(t *testing.T) {
	base := []string{"a", "b", "c", "d"}
	tests := []struct {
		name    string
		dragged string
		before  *string
		want    []string
	}{
		{name: "move to front", dragged: "c", before: ptr("a"), want: []string{"c", "a", "b", "d"}},
		{name: "move forward", dragged: "a", before: ptr("d"), want: []string{"b", "c", "a", "d"}},
		{name: "move to end", dragged: "b", before: nil, want: []string{"a", "c", "d", "b"}},
		{name: "drop before next sibling", dragged: "b", before: ptr("c"), want: base},
		{name: "drop on itself", dragged: "b", before: ptr("b"), want: base},
		{name: "last item to end", dragged: "d", before: nil, want: base},
		{name: "unknown dragged", dragged: "z", before: ptr("a"), want: base},
		{name: "unknown target", dragged: "a", before: ptr("z"), want: base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reorder(base, tt.dragged, tt.before)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"a", "b", "c", "d"}, base, "input must not be mutated")
		})
	}
}

func TestReorderIdempotentForEveryItem(t *testing.T) {
	seq := []int{4, 0, 3, 1, 2}
	for i, item := range seq {
		var next *int
		if i+1 < len(seq) {
			next = ptr(seq[i+1])
		}
		assert.Equal(t, seq, Reorder(seq, item, next), "item %d", item)
	}
}

func TestReorderFewerThanTwoIsNoop(t *testing.T) {
	assert.Equal(t, []int{7}, Reorder([]int{7}, 7, nil))
	assert.Empty(t, Reorder([]int{}, 1, nil))
}

func TestListRejectsDuplicates(t *testing.T) {
	_, err := NewList(1, 2, 1)
	assert.ErrorIs(t, err, ErrDuplicate)

	l, err := NewList(1, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Add(2), ErrDuplicate)
	assert.ErrorIs(t, l.Remove(9), ErrUnknown)
}

func TestLabelsFollowPosition(t *testing.T) {
	s := New(4)
	s.Move(3, ptr(0))
	labels := s.Labels()
	require.Len(t, labels, 4)
	for i, l := range labels {
		assert.Equal(t, i+1, l.Position)
	}
	assert.Equal(t, 3, labels[0].Item)
	assert.Equal(t, "1", labels[0].Text)
	assert.Equal(t, []int{3, 0, 1, 2}, s.PageOrder())
}

func TestPageSetParams(t *testing.T) {
	s := New(3)
	s.Move(0, nil)
	require.NoError(t, s.Rotate(2, 90))
	require.NoError(t, s.Rotate(1, 180))
	require.NoError(t, s.Rotate(1, 180))
	require.NoError(t, s.Remove(1))

	v := s.Params()
	assert.Equal(t, "[2,0]", v.Get("page_order"))
	assert.Equal(t, `{"2":90}`, v.Get("rotations"))

	assert.Error(t, s.Rotate(0, 45))
	assert.ErrorIs(t, s.Rotate(1, 90), ErrUnknown)
}

func TestPageSetKeepsOnePage(t *testing.T) {
	s := New(1)
	assert.ErrorIs(t, s.Remove(0), ErrTooFew)
}

func TestFromOrder(t *testing.T) {
	s, err := FromOrder(5, []int{4, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 0}, s.PageOrder())

	_, err = FromOrder(5, []int{1, 1})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = FromOrder(5, []int{5})
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		sel     string
		want    []int
		wantErr bool
	}{
		{sel: "all", want: []int{1, 2, 3, 4, 5}},
		{sel: "", want: []int{1, 2, 3, 4, 5}},
		{sel: "1-3,5", want: []int{1, 2, 3, 5}},
		{sel: " 4 , 2-3, 3 ", want: []int{2, 3, 4}},
		{sel: "0", wantErr: true},
		{sel: "3-1", wantErr: true},
		{sel: "6", wantErr: true},
		{sel: "x", wantErr: true},
		{sel: ",", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			got, err := ParseSelection(tt.sel, 5)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileListMerge(t *testing.T) {
	a, b, c := FileRef{ID: "1", Name: "a.pdf"}, FileRef{ID: "2", Name: "b.pdf"}, FileRef{ID: "3", Name: "c.pdf"}
	fl, err := NewFileList(a)
	require.NoError(t, err)
	assert.ErrorIs(t, fl.Ready(), ErrTooFew)

	require.NoError(t, fl.Add(b))
	require.NoError(t, fl.Add(c))
	require.NoError(t, fl.Ready())

	require.NoError(t, fl.MoveByID("3", "1"))
	assert.Equal(t, []FileRef{c, a, b}, fl.Items())
	require.NoError(t, fl.MoveByID("3", ""))
	assert.Equal(t, []FileRef{a, b, c}, fl.Items())
	assert.ErrorIs(t, fl.MoveByID("9", ""), ErrUnknown)
}
