package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/af-corp/docroute/internal/runner"
)

// LocalConfig configures the in-process fallback extractor.
type LocalConfig struct {
	Enabled       bool
	Tesseract     string
	TesseractLang string
}

// LocalExtractor is the degraded path used when no backend answers. It runs
// tesseract over a page image and applies regex heuristics to the text.
type LocalExtractor struct {
	cfg    LocalConfig
	runner runner.Runner
	logger *slog.Logger
}

func NewLocalExtractor(cfg LocalConfig, r runner.Runner, logger *slog.Logger) *LocalExtractor {
	if r == nil {
		r = runner.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &LocalExtractor{cfg: cfg, runner: r, logger: logger}
}

// Header returns the best-effort header subset of a page. A disabled
// extractor returns an empty header without error.
func (e *LocalExtractor) Header(ctx context.Context, page []byte) (map[string]any, error) {
	if !e.cfg.Enabled {
		return map[string]any{}, nil
	}
	text, err := e.ocr(ctx, page)
	if err != nil {
		return map[string]any{}, err
	}
	return ParseHeaderText(text), nil
}

// LineItems returns the table rows recognised on a page.
func (e *LocalExtractor) LineItems(ctx context.Context, page []byte) ([]LineItem, error) {
	if !e.cfg.Enabled {
		return nil, nil
	}
	text, err := e.ocr(ctx, page)
	if err != nil {
		return nil, err
	}
	return ParseLineItemsText(text), nil
}

func (e *LocalExtractor) ocr(ctx context.Context, page []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "docroute-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	path := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(path, page, 0o600); err != nil {
		return "", fmt.Errorf("write ocr input: %w", err)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, runner.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}

var (
	reInvoiceNo = regexp.MustCompile(`(?im)\binvoice\s*(?:no\.?|number|num\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,})`)
	reDate      = regexp.MustCompile(`(?im)(?:invoice\s+)?date\s*:?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`)
	rePONumber  = regexp.MustCompile(`(?im)\b(?:p\.?o\.?|purchase\s+order)\s*(?:no\.?|number|#|:)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,})`)
	reTotal     = regexp.MustCompile(`(?im)^\s*(?:grand\s+)?total(?:\s+amount)?(?:\s+due)?\s*:?\s*([A-Z]{3}|[$€£])?\s*(\d[\d,]*(?:\.\d{1,2})?)\s*([A-Z]{3})?\s*$`)
	reItemRow   = regexp.MustCompile(`^\s*(.+?)\s+(\d+(?:\.\d+)?)\s+[$€£]?(\d[\d,]*\.\d{2})\s+[$€£]?(\d[\d,]*\.\d{2})\s*$`)
	reItemCode  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-]*\d[A-Z0-9\-]*$`)
)

var currencySymbols = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

// ParseHeaderText pulls invoice number, dates, PO number and totals out of
// OCR text. Keys it cannot find are left out.
func ParseHeaderText(text string) map[string]any {
	h := map[string]any{}
	if m := reInvoiceNo.FindStringSubmatch(text); m != nil {
		h[KeyInvoiceNumber] = m[1]
	}
	if m := reDate.FindStringSubmatch(text); m != nil {
		h[KeyInvoiceDate] = m[1]
	}
	if m := rePONumber.FindStringSubmatch(text); m != nil {
		h[KeyPONumber] = m[1]
	}
	if m := reTotal.FindStringSubmatch(text); m != nil {
		if amt, ok := parseAmount(m[2]); ok {
			h[KeyTotalAmount] = amt
		}
		cur := m[3]
		if cur == "" {
			cur = m[1]
		}
		if code, ok := currencySymbols[cur]; ok {
			cur = code
		}
		if cur != "" {
			h[KeyTotalCurrency] = cur
		}
	}
	return h
}

// ParseLineItemsText recognises rows ending in quantity, unit price and
// amount. A leading token containing a digit is taken as the item code.
func ParseLineItemsText(text string) []LineItem {
	var items []LineItem
	for _, line := range strings.Split(text, "\n") {
		m := reItemRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		if strings.HasPrefix(strings.ToLower(desc), "total") || strings.HasPrefix(strings.ToLower(desc), "subtotal") {
			continue
		}
		qty, ok1 := parseAmount(m[2])
		unit, ok2 := parseAmount(m[3])
		amount, ok3 := parseAmount(m[4])
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		item := LineItem{
			"description": desc,
			"quantity":    qty,
			"unit_price":  unit,
			"amount":      amount,
		}
		if code, rest, ok := strings.Cut(desc, " "); ok && reItemCode.MatchString(code) {
			item["code"] = code
			item["description"] = strings.TrimSpace(rest)
		}
		items = append(items, item)
	}
	return items
}

func parseAmount(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f, err == nil
}
