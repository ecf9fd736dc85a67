// Package paginate turns an input document into an ordered list of page
// images. PDFs are rendered one PNG per page with poppler; any other input
// is treated as a single page.
package paginate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/af-corp/docroute/internal/runner"
)

var (
	ErrEmptyDocument = errors.New("empty document")
	ErrNoPages       = errors.New("document has no pages")
)

var pdfMagic = []byte("%PDF-")

type Config struct {
	Pdfinfo     string
	Pdftoppm    string
	DPI         int
	MaxPages    int
	Concurrency int
}

// Paginator opens documents for rendering.
type Paginator struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func New(cfg Config, r runner.Runner, logger *slog.Logger) *Paginator {
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if r == nil {
		r = runner.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{cfg: cfg, runner: r, logger: logger}
}

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic)
}

// Document is an opened input. Close must be called to remove temp files.
type Document struct {
	p     *Paginator
	data  []byte
	pdf   bool
	dir   string
	path  string
	pages int
}

// Open inspects data and, for PDFs, counts pages with pdfinfo.
func (p *Paginator) Open(ctx context.Context, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if !IsPDF(data) {
		return &Document{p: p, data: data, pages: 1}, nil
	}

	dir, err := os.MkdirTemp("", "docroute-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create page temp dir: %w", err)
	}
	doc := &Document{p: p, data: data, pdf: true, dir: dir, path: filepath.Join(dir, "input.pdf")}
	if err := os.WriteFile(doc.path, data, 0o600); err != nil {
		doc.Close()
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	out, errb, err := p.runner.Run(ctx, p.cfg.Pdfinfo, doc.path)
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("pdfinfo: %w: %s", err, runner.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	n, err := parsePageCount(out)
	if err != nil {
		doc.Close()
		return nil, err
	}
	if p.cfg.MaxPages > 0 && n > p.cfg.MaxPages {
		p.logger.Warn("paginate.truncated", "pages", n, "max_pages", p.cfg.MaxPages)
		n = p.cfg.MaxPages
	}
	doc.pages = n
	return doc, nil
}

func parsePageCount(out []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("parse pdfinfo page count %q: %w", val, err)
		}
		if n < 1 {
			return 0, ErrNoPages
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no page count")
}

// PageCount is at least 1 for an opened document.
func (d *Document) PageCount() int { return d.pages }

// Render returns the image of page n, counting from 1.
func (d *Document) Render(ctx context.Context, n int) ([]byte, error) {
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, d.pages)
	}
	if !d.pdf {
		return d.data, nil
	}

	prefix := filepath.Join(d.dir, fmt.Sprintf("page-%d", n))
	page := strconv.Itoa(n)
	_, errb, err := d.p.runner.Run(ctx, d.p.cfg.Pdftoppm,
		"-r", strconv.Itoa(d.p.cfg.DPI), "-png", "-f", page, "-l", page, "-singlefile",
		d.path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", n, err, runner.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", n, err)
	}
	return img, nil
}

// RenderRange renders pages from..to (inclusive) with bounded parallelism
// and returns them in page order.
func (d *Document) RenderRange(ctx context.Context, from, to int) ([][]byte, error) {
	if from > to {
		return nil, nil
	}
	out := make([][]byte, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.p.cfg.Concurrency)
	for n := from; n <= to; n++ {
		g.Go(func() error {
			img, err := d.Render(gctx, n)
			if err != nil {
				return err
			}
			out[n-from] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close removes rendered pages and the temp copy of the input.
func (d *Document) Close() error {
	if d.dir == "" {
		return nil
	}
	return os.RemoveAll(d.dir)
}

// Paginate renders every page of data in order.
func (p *Paginator) Paginate(ctx context.Context, data []byte) ([][]byte, error) {
	doc, err := p.Open(ctx, data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.RenderRange(ctx, 1, doc.PageCount())
}
