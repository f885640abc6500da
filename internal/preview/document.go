// Package preview opens uploaded PDFs, enforces the page limit before any
// rendering starts and renders page thumbnails onto a Surface that never
// mixes frames from two documents.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrPageLimit  = errors.New("page limit exceeded")
	ErrUnreadable = errors.New("document could not be read")
	ErrClosed     = errors.New("document closed")
)

// Size is a page size in document points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is an opened, parsed document. Page indices are 0-based.
type Document interface {
	NumPages() int
	PageSize(i int) (Size, error)
	Render(ctx context.Context, i int, dpi float64) (image.Image, error)
	Close() error
}

// Opener parses raw document bytes.
type Opener interface {
	Open(data []byte) (Document, error)
}

var defaultOpener Opener = pdfOpener{}

// Open parses data with the default opener and refuses documents with more
// than limit pages (limit <= 0 disables the check).
func Open(data []byte, limit int) (Document, error) {
	return openWith(defaultOpener, data, limit)
}

func openWith(o Opener, data []byte, limit int) (Document, error) {
	doc, err := o.Open(data)
	if err != nil {
		if errors.Is(err, ErrUnreadable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if n := doc.NumPages(); limit > 0 && n > limit {
		_ = doc.Close()
		return nil, fmt.Errorf("%w: document has %d pages, limit is %d", ErrPageLimit, n, limit)
	}
	return doc, nil
}

// pdfOpener validates structure and reads page boxes with pdfcpu, then hands
// the same bytes to MuPDF (go-fitz) for rasterizing.
type pdfOpener struct{}

func (pdfOpener) Open(data []byte) (Document, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: page sizes: %v", ErrUnreadable, err)
	}
	sizes := make([]Size, len(dims))
	for i, d := range dims {
		sizes[i] = Size{Width: d.Width, Height: d.Height}
	}
	if len(sizes) == 0 || len(sizes) != ctx.PageCount {
		return nil, fmt.Errorf("%w: %d page boxes for %d pages", ErrUnreadable, len(sizes), ctx.PageCount)
	}
	return &fitzDocument{data: data, sizes: sizes}, nil
}

// fitzDocument opens the MuPDF handle on first render. MuPDF documents are
// not safe for concurrent use, so every call holds mu.
type fitzDocument struct {
	mu     sync.Mutex
	data   []byte
	sizes  []Size
	fz     *fitz.Document
	closed bool
}

func (d *fitzDocument) NumPages() int { return len(d.sizes) }

func (d *fitzDocument) PageSize(i int) (Size, error) {
	if i < 0 || i >= len(d.sizes) {
		return Size{}, fmt.Errorf("page %d out of range [0,%d)", i, len(d.sizes))
	}
	return d.sizes[i], nil
}

func (d *fitzDocument) Render(ctx context.Context, i int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(d.sizes) {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, len(d.sizes))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.fz == nil {
		fz, err := fitz.NewFromMemory(d.data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		d.fz = fz
	}
	img, err := d.fz.ImageDPI(i, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", i+1, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.data = nil
	if d.fz == nil {
		return nil
	}
	return d.fz.Close()
}

// RendererVersion reports the MuPDF version the renderer is built against.
func RendererVersion() (string, error) {
	if fitz.FzVersion == "" {
		return "", errors.New("renderer unavailable")
	}
	return fitz.FzVersion, nil
}
