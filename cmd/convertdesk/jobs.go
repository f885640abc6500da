package main

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/url"
    "os"
    "os/signal"
    "path/filepath"
    "strconv"
    "strings"
    "syscall"

    "github.com/spf13/cobra"

    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/filetype"
    "github.com/local/convertdesk/internal/pageset"
    "github.com/local/convertdesk/internal/present"
    "github.com/local/convertdesk/internal/preview"
    "github.com/local/convertdesk/internal/storage"
    "github.com/local/convertdesk/internal/tasks"
)

// progressPrinter writes one line per progress change to stderr.
type progressPrinter struct {
    out  io.Writer
    last int
}

func (p *progressPrinter) Progress(percent int, step string) {
    if percent == p.last && step == "" {
        return
    }
    p.last = percent
    if step != "" {
        fmt.Fprintf(p.out, "%3d%%  %s\n", percent, step)
        return
    }
    fmt.Fprintf(p.out, "%3d%%\n", percent)
}
func (p *progressPrinter) Done(a *tasks.Artifact) {}
func (p *progressPrinter) Error(err error)         {}

// run submits req, follows it to the end and stores the artifact. Ctrl-C
// cancels the operation, which is not reported as a failure.
func (a *app) run(cmd *cobra.Command, req tasks.Request, outDir string) error {
    ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    op := tasks.Start(context.Background(), a.client, req, tasks.Options{
        Poll:     a.cfg.Poll,
        Tracker:  a.tracker,
        Reporter: &progressPrinter{out: cmd.ErrOrStderr(), last: -1},
        OnCancel: func() { fmt.Fprintln(cmd.ErrOrStderr(), "cancelled") },
    })
    go func() {
        select {
        case <-ctx.Done():
            op.Cancel()
        case <-op.Done():
        }
    }()

    art, err := op.Wait(context.Background())
    if err != nil {
        if tasks.IsCancelled(err) {
            return nil
        }
        return errors.New(present.Message(err))
    }

    sink, _, err := a.sink(context.Background(), outDir)
    if err != nil {
        return err
    }
    loc, err := sink.Save(context.Background(), op.ID, storage.Object{Name: art.Name, ContentType: art.ContentType, Data: art.Data})
    if err != nil {
        return fmt.Errorf("store result: %w", err)
    }
    fmt.Fprintln(cmd.OutOrStdout(), loc)
    return nil
}

// readInput loads and validates one input file.
func (a *app) readInput(path string, accept ...filetype.Category) (tasks.Upload, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return tasks.Upload{}, err
    }
    name := filepath.Base(path)
    if _, err := filetype.Validate(data, name, filetype.Rules{Accept: accept, MaxBytes: int64(a.cfg.Editor.MaxUploadMB) << 20}); err != nil {
        return tasks.Upload{}, errors.New(present.Message(err))
    }
    return tasks.Upload{Field: "file", Name: name, Data: data}, nil
}

// inspect opens a PDF for its page count and page sizes, enforcing the page limit.
func (a *app) inspect(up tasks.Upload) (preview.Document, error) {
    doc, err := preview.Open(up.Data, a.cfg.Editor.PageLimit)
    if err != nil {
        return nil, errors.New(present.Message(err))
    }
    return doc, nil
}

// parsePages reads a comma list of 1-based page numbers, keeping its order.
func parsePages(s string) ([]int, error) {
    var out []int
    for _, part := range strings.Split(s, ",") {
        part = strings.TrimSpace(part)
        if part == "" {
            continue
        }
        n, err := strconv.Atoi(part)
        if err != nil || n < 1 {
            return nil, fmt.Errorf("invalid page %q", part)
        }
        out = append(out, n)
    }
    return out, nil
}

func newSubmitCommand(a *app) *cobra.Command {
    var endpoint, outDir string
    var params []string
    cmd := &cobra.Command{
        Use:   "submit [flags] <file>",
        Short: "Convert a file with any API endpoint",
        Example: `  convertdesk submit --endpoint /api/convert/ --param target=docx report.pdf
  convertdesk submit --endpoint /api/pdf/compress/ --param level=high scan.pdf`,
        Args: cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            up, err := a.readInput(args[0])
            if err != nil {
                return err
            }
            v := url.Values{}
            for _, p := range params {
                k, val, ok := strings.Cut(p, "=")
                if !ok {
                    return fmt.Errorf("--param %q: want key=value", p)
                }
                v.Add(k, val)
            }
            return a.run(cmd, tasks.Request{Tool: "submit", Endpoint: endpoint, Files: []tasks.Upload{up}, Params: v}, outDir)
        },
    }
    cmd.Flags().StringVar(&endpoint, "endpoint", "/api/convert/", "API path to post to")
    cmd.Flags().StringArrayVar(&params, "param", nil, "form field key=value (repeatable)")
    cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory (default: S3 if configured, else $RESULT_DIR)")
    return cmd
}

func newOrganizeCommand(a *app) *cobra.Command {
    var order, remove, outDir string
    var rotate []string
    cmd := &cobra.Command{
        Use:   "organize [flags] <file.pdf>",
        Short: "Reorder, rotate or drop pages of a PDF",
        Long:  "Pages are numbered from 1. Removal and rotation refer to source page numbers.",
        Example: `  convertdesk organize --order 3,1,2 slides.pdf
  convertdesk organize --remove 2 --rotate 1=90 --rotate 3=180 scan.pdf`,
        Args: cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            up, err := a.readInput(args[0], filetype.CategoryPDF)
            if err != nil {
                return err
            }
            doc, err := a.inspect(up)
            if err != nil {
                return err
            }
            n := doc.NumPages()
            _ = doc.Close()

            ps := pageset.New(n)
            if order != "" {
                pages, err := parsePages(order)
                if err != nil {
                    return err
                }
                if ps, err = pageset.FromOrder(n, toIndices(pages)); err != nil {
                    return errors.New(present.Message(err))
                }
            }
            drop, err := parsePages(remove)
            if err != nil {
                return err
            }
            for _, p := range drop {
                if err := ps.Remove(p - 1); err != nil {
                    return errors.New(present.Message(err))
                }
            }
            for _, r := range rotate {
                page, deg, ok := strings.Cut(r, "=")
                p, err1 := strconv.Atoi(page)
                d, err2 := strconv.Atoi(deg)
                if !ok || err1 != nil || err2 != nil {
                    return fmt.Errorf("--rotate %q: want page=degrees", r)
                }
                if err := ps.Rotate(p-1, d); err != nil {
                    return err
                }
            }
            return a.run(cmd, tasks.Request{Tool: "organize", Endpoint: "/api/pdf/organize/", Files: []tasks.Upload{up}, Params: ps.Params()}, outDir)
        },
    }
    cmd.Flags().StringVar(&order, "order", "", "new page order, e.g. 3,1,2 (pages left out are dropped)")
    cmd.Flags().StringVar(&remove, "remove", "", "pages to drop, e.g. 2,5")
    cmd.Flags().StringArrayVar(&rotate, "rotate", nil, "page=degrees, multiples of 90 (repeatable)")
    cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory")
    return cmd
}

func toIndices(pages []int) []int {
    out := make([]int, len(pages))
    for i, p := range pages {
        out[i] = p - 1
    }
    return out
}

func newMergeCommand(a *app) *cobra.Command {
    var outDir string
    cmd := &cobra.Command{
        Use:     "merge [flags] <a.pdf> <b.pdf> [more.pdf...]",
        Short:   "Merge PDFs in the order given",
        Example: `  convertdesk merge cover.pdf body.pdf appendix.pdf`,
        Args:    cobra.MinimumNArgs(pageset.MinMergeFiles),
        RunE: func(cmd *cobra.Command, args []string) error {
            uploads := map[string]tasks.Upload{}
            var refs []pageset.FileRef
            for i, path := range args {
                up, err := a.readInput(path, filetype.CategoryPDF)
                if err != nil {
                    return err
                }
                id := strconv.Itoa(i)
                uploads[id] = up
                refs = append(refs, pageset.FileRef{ID: id, Name: up.Name})
            }
            list, err := pageset.NewFileList(refs...)
            if err != nil {
                return err
            }
            if err := list.Ready(); err != nil {
                return errors.New(present.Message(err))
            }
            var files []tasks.Upload
            for _, ref := range list.MergeParts() {
                up := uploads[ref.ID]
                up.Field = "pdf_files"
                files = append(files, up)
            }
            return a.run(cmd, tasks.Request{Tool: "merge", Endpoint: "/api/pdf/merge/", Files: files}, outDir)
        },
    }
    cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory")
    return cmd
}

func newCropCommand(a *app) *cobra.Command {
    var x, y, width, height float64
    var page int
    var all bool
    var outDir string
    cmd := &cobra.Command{
        Use:   "crop [flags] <file.pdf>",
        Short: "Crop a page (or every page) to a rectangle in PDF points",
        Long: `The rectangle is given in PDF points with the origin at the bottom-left
corner of the page. It is clamped to the page; omit it to keep the full page.`,
        Example: `  convertdesk crop --x 36 --y 36 --width 540 --height 720 --all scan.pdf`,
        Args:    cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            up, err := a.readInput(args[0], filetype.CategoryPDF)
            if err != nil {
                return err
            }
            doc, err := a.inspect(up)
            if err != nil {
                return err
            }
            size, err := doc.PageSize(page - 1)
            _ = doc.Close()
            if err != nil {
                return fmt.Errorf("--page %d: %w", page, err)
            }
            tf, err := editor.NewTransform(size.Width, size.Height, size.Width, size.Height)
            if err != nil {
                return err
            }
            crop := editor.NewCropEditor(tf, editor.CropOptions{MinSize: a.cfg.Editor.MinCropPx})
            if width > 0 && height > 0 {
                if err := crop.SetDocumentRect(editor.Rect{X: x, Y: y, Width: width, Height: height}); err != nil {
                    return err
                }
            }
            return a.run(cmd, tasks.Request{Tool: "crop", Endpoint: "/api/pdf/crop/", Files: []tasks.Upload{up}, Params: crop.Params(page-1, all)}, outDir)
        },
    }
    cmd.Flags().Float64Var(&x, "x", 0, "left edge in points")
    cmd.Flags().Float64Var(&y, "y", 0, "bottom edge in points")
    cmd.Flags().Float64Var(&width, "width", 0, "width in points")
    cmd.Flags().Float64Var(&height, "height", 0, "height in points")
    cmd.Flags().IntVar(&page, "page", 1, "page to crop (1-based)")
    cmd.Flags().BoolVar(&all, "all", false, "apply the rectangle to every page")
    cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory")
    return cmd
}

func newWatermarkCommand(a *app) *cobra.Command {
    var style editor.Style
    var image, position, pages, outDir string
    var rotation, scale float64
    cmd := &cobra.Command{
        Use:   "watermark [flags] <file.pdf>",
        Short: "Stamp text or an image onto PDF pages",
        Example: `  convertdesk watermark --text DRAFT --position center --rotation 45 report.pdf
  convertdesk watermark --image logo.png --position bottom-right --scale 0.5 --pages 1-3 report.pdf`,
        Args: cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            pos, err := editor.ParsePosition(position)
            if err != nil {
                return err
            }
            up, err := a.readInput(args[0], filetype.CategoryPDF)
            if err != nil {
                return err
            }
            doc, err := a.inspect(up)
            if err != nil {
                return err
            }
            n := doc.NumPages()
            size, err := doc.PageSize(0)
            _ = doc.Close()
            if err != nil {
                return err
            }
            if _, err := pageset.ParseSelection(pages, n); err != nil {
                return errors.New(present.Message(err))
            }

            files := []tasks.Upload{up}
            if image != "" {
                mark, err := a.readInput(image, filetype.CategoryImage)
                if err != nil {
                    return err
                }
                if style.ImageWidth, style.ImageHeight, err = imageSize(mark.Data); err != nil {
                    return err
                }
                mark.Field = "watermark_image"
                files = append(files, mark)
                style.Text = ""
            }
            tf, err := editor.NewTransform(size.Width, size.Height, size.Width, size.Height)
            if err != nil {
                return err
            }
            wm, err := editor.NewWatermarkEditor(tf, style, editor.WatermarkOptions{
                RotateSensitivity: a.cfg.Editor.RotateSensitivity,
                RotateMaxStep:     a.cfg.Editor.RotateClamp,
            })
            if err != nil {
                return err
            }
            wm.SetRotation(rotation)
            if scale > 0 {
                wm.SetScale(scale)
            }
            wm.SetPreset(pos)
            return a.run(cmd, tasks.Request{Tool: "watermark", Endpoint: "/api/pdf/watermark/", Files: files, Params: wm.Params(pages)}, outDir)
        },
    }
    cmd.Flags().StringVar(&style.Text, "text", "", "watermark text")
    cmd.Flags().Float64Var(&style.FontSize, "font-size", 48, "font size in points")
    cmd.Flags().StringVar(&style.Color, "color", "#808080", "text color #rrggbb")
    cmd.Flags().Float64Var(&style.Opacity, "opacity", 0.5, "opacity 0..1")
    cmd.Flags().StringVar(&image, "image", "", "image file to stamp instead of text")
    cmd.Flags().StringVar(&position, "position", "center", "center, top-left, top-center, top-right, bottom-left, bottom-center, bottom-right")
    cmd.Flags().Float64Var(&rotation, "rotation", 0, "rotation in degrees")
    cmd.Flags().Float64Var(&scale, "scale", 0, "scale (default 1, capped to fit the page)")
    cmd.Flags().StringVar(&pages, "pages", "all", `"all" or a selection like 1-3,5`)
    cmd.Flags().StringVarP(&outDir, "out", "o", "", "result directory")
    return cmd
}
