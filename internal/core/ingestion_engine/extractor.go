package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/docqa/internal/core"
)

// textSource is one structural extraction strategy.
type textSource struct {
	name    string
	extract func(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor implements core.TextExtractor. Structural extraction runs first;
// when it yields less than minTextLength runes the document is treated as
// image-based and handed to the recognizer, if OCR is enabled.
type PDFExtractor struct {
	sources       []textSource
	recognizer    core.Recognizer
	minTextLength int
	ocrEnabled    bool
}

func NewPDFExtractor(recognizer core.Recognizer, minTextLength int, ocrEnabled bool) *PDFExtractor {
	if minTextLength <= 0 {
		minTextLength = 50
	}
	return &PDFExtractor{
		sources: []textSource{
			{name: "docconv", extract: docconvText},
			{name: "ledongthuc/pdf", extract: goPDFText},
		},
		recognizer:    recognizer,
		minTextLength: minTextLength,
		ocrEnabled:    ocrEnabled,
	}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", core.ErrExtractionFailed)
	}

	text := e.structural(ctx, data)
	if utf8.RuneCountInString(text) >= e.minTextLength {
		return text, nil
	}

	if !e.ocrEnabled || e.recognizer == nil {
		return "", core.ErrImageBasedUnsupported
	}

	log.Printf("PDFExtractor: structural extraction produced %d characters, falling back to OCR", utf8.RuneCountInString(text))
	ocrText, err := e.recognizer.Recognize(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: ocr: %w", core.ErrExtractionFailed, err)
	}
	ocrText = normalizeText(ocrText)
	if utf8.RuneCountInString(ocrText) < e.minTextLength {
		return "", fmt.Errorf("%w: ocr produced %d characters", core.ErrExtractionFailed, utf8.RuneCountInString(ocrText))
	}
	return ocrText, nil
}

// structural returns the longest text any structural source produced.
func (e *PDFExtractor) structural(ctx context.Context, data []byte) string {
	var best string
	for _, src := range e.sources {
		if ctx.Err() != nil {
			break
		}
		text, err := src.extract(ctx, data)
		if err != nil {
			log.Printf("PDFExtractor: %s failed: %v", src.name, err)
			continue
		}
		text = normalizeText(text)
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best = text
		}
		if utf8.RuneCountInString(best) >= e.minTextLength {
			break
		}
	}
	return best
}

func docconvText(_ context.Context, data []byte) (string, error) {
	body, _, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return body, nil
}

func goPDFText(_ context.Context, data []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("PDFExtractor: page %d unreadable: %v", i, err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

var _ core.TextExtractor = (*PDFExtractor)(nil)
