package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/convertdesk/internal/metrics"
)

// ErrSuperseded is returned by RenderAll when a newer document replaced the
// one it was rendering. It is not a failure.
var ErrSuperseded = errors.New("preview superseded by a newer document")

// Frame is one rendered page.
type Frame struct {
	Generation uint64 `json:"generation"`
	Page       int    `json:"page"`
	Size       Size   `json:"size"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	JPEG       []byte `json:"-"`
}

type SurfaceOptions struct {
	Opener    Opener
	PageLimit int
	DPI       float64
	Quality   int
	Color     ColorMode
}

// handle counts renders in flight so a replaced document is closed only
// after the last of them returns.
type handle struct {
	doc     Document
	refs    int
	retired bool
}

// Surface owns the current preview document and its frames. Every Load bumps
// the generation; a render commits a frame only if its generation is still
// current.
type Surface struct {
	opts SurfaceOptions

	mu     sync.Mutex
	gen    uint64
	cur    *handle
	name   string
	frames []Frame
}

func NewSurface(opts SurfaceOptions) *Surface {
	if opts.Opener == nil {
		opts.Opener = defaultOpener
	}
	if opts.DPI <= 0 {
		opts.DPI = 72
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}
	if opts.Color == "" {
		opts.Color = ColorRGB
	}
	return &Surface{opts: opts}
}

// Load parses data and makes it the current document. On failure the
// previous document and frames stay in place.
func (s *Surface) Load(data []byte, name string) (uint64, error) {
	doc, err := openWith(s.opts.Opener, data, s.opts.PageLimit)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.cur
	s.cur = &handle{doc: doc}
	s.name = name
	s.frames = nil
	closeOld := old != nil && s.retireLocked(old)
	s.mu.Unlock()

	if closeOld {
		closeQuietly(old.doc, gen-1)
	}
	log.Debug().Uint64("generation", gen).Str("name", name).Int("pages", doc.NumPages()).Msg("preview document loaded")
	return gen, nil
}

// RenderAll renders every page of generation gen in order.
func (s *Surface) RenderAll(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if s.cur == nil || s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	h := s.cur
	h.refs++
	s.mu.Unlock()
	defer s.release(h, gen)

	for page := 0; page < h.doc.NumPages(); page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.current(gen) {
			return ErrSuperseded
		}
		frame, err := s.render(ctx, h.doc, gen, page)
		if err != nil {
			if !s.current(gen) {
				metrics.IncRenderDiscarded()
				return ErrSuperseded
			}
			return err
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			metrics.IncRenderDiscarded()
			log.Debug().Uint64("generation", gen).Int("page", page+1).Msg("discarded stale preview frame")
			return ErrSuperseded
		}
		s.frames = append(s.frames, frame)
		s.mu.Unlock()
	}
	return nil
}

func (s *Surface) render(ctx context.Context, doc Document, gen uint64, page int) (Frame, error) {
	size, err := doc.PageSize(page)
	if err != nil {
		return Frame{}, err
	}
	img, err := doc.Render(ctx, page, s.opts.DPI)
	if err != nil {
		return Frame{}, err
	}
	jpg, err := EncodeJPEG(img, s.opts.Quality, s.opts.Color)
	if err != nil {
		return Frame{}, err
	}
	b := img.Bounds()
	return Frame{Generation: gen, Page: page, Size: size, Width: b.Dx(), Height: b.Dy(), JPEG: jpg}, nil
}

func (s *Surface) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Surface) release(h *handle, gen uint64) {
	s.mu.Lock()
	h.refs--
	closeNow := h.retired && h.refs == 0
	s.mu.Unlock()
	if closeNow {
		closeQuietly(h.doc, gen)
	}
}

// retireLocked marks h replaced and reports whether it can be closed now.
func (s *Surface) retireLocked(h *handle) bool {
	h.retired = true
	return h.refs == 0
}

// Frames returns the committed frames of the current document, in page order.
func (s *Surface) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func (s *Surface) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Surface) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Surface) NumPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0
	}
	return s.cur.doc.NumPages()
}

// PageSize reports the size in points of page (0-based) of the current document.
func (s *Surface) PageSize(page int) (Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Size{}, fmt.Errorf("no document loaded")
	}
	return s.cur.doc.PageSize(page)
}

// Close releases the current document. Frames are dropped.
func (s *Surface) Close() {
	s.mu.Lock()
	h := s.cur
	gen := s.gen
	s.cur = nil
	s.frames = nil
	s.gen++
	closeNow := h != nil && s.retireLocked(h)
	s.mu.Unlock()
	if closeNow {
		closeQuietly(h.doc, gen)
	}
}

func closeQuietly(doc Document, gen uint64) {
	if err := doc.Close(); err != nil {
		log.Debug().Err(err).Uint64("generation", gen).Msg("preview document close failed")
	}
}
