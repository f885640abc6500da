package pageset

import "fmt"

// MinMergeFiles is the fewest inputs a merge accepts.
const MinMergeFiles = 2

// FileRef names one uploaded input of a merge.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileList is the merge-tool state; the order of Items is the merge order.
type FileList struct {
	*List[FileRef]
}

func NewFileList(files ...FileRef) (*FileList, error) {
	l, err := NewList(files...)
	if err != nil {
		return nil, err
	}
	return &FileList{List: l}, nil
}

// Find returns the file with the given id.
func (f *FileList) Find(id string) (FileRef, bool) {
	for _, ref := range f.items {
		if ref.ID == id {
			return ref, true
		}
	}
	return FileRef{}, false
}

// MoveByID applies a drag gesture addressed by file ids; beforeID "" drops at the end.
func (f *FileList) MoveByID(draggedID, beforeID string) error {
	dragged, ok := f.Find(draggedID)
	if !ok {
		return fmt.Errorf("%w: file %s", ErrUnknown, draggedID)
	}
	if beforeID == "" {
		f.Move(dragged, nil)
		return nil
	}
	before, ok := f.Find(beforeID)
	if !ok {
		return fmt.Errorf("%w: file %s", ErrUnknown, beforeID)
	}
	f.Move(dragged, &before)
	return nil
}

// Ready reports whether the list can be submitted.
func (f *FileList) Ready() error {
	if f.Len() < MinMergeFiles {
		return fmt.Errorf("%w: merge needs at least %d files, have %d", ErrTooFew, MinMergeFiles, f.Len())
	}
	return nil
}

// MergeParts returns the inputs in submission order; each becomes one
// repeated pdf_files part.
func (f *FileList) MergeParts() []FileRef { return f.Items() }
