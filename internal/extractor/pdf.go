package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfHeaderWindow is how far into the file a "%PDF-" header may start;
// readers tolerate leading garbage up to 1 KiB.
const pdfHeaderWindow = 1024

var pdfMagic = []byte("%PDF-")

type PDFInfo struct {
	Version   string
	PageCount int
	// HasText is false for documents without any extractable text, which
	// usually means a scan with no text layer.
	HasText bool
}

// HasPDFHeader reports whether data carries a PDF header near its start.
func HasPDFHeader(data []byte) bool {
	window := data
	if len(window) > pdfHeaderWindow {
		window = window[:pdfHeaderWindow]
	}
	return bytes.Contains(window, pdfMagic)
}

// InspectPDF reads the header version and page count. The parser only
// understands classic cross-reference tables, so callers should treat an
// error as "unknown", not as "invalid".
func InspectPDF(data []byte) (info *PDFInfo, err error) {
	if !HasPDFHeader(data) {
		return nil, fmt.Errorf("missing PDF header")
	}

	info = &PDFInfo{Version: headerVersion(data)}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader := bytes.NewReader(data)

	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	info.PageCount = pdfReader.NumPage()
	info.HasText = hasText(pdfReader)

	return info, nil
}

// hasText stops at the first page that yields non-blank text.
func hasText(r *pdf.Reader) (found bool) {
	defer func() {
		if recover() != nil {
			found = false
		}
	}()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			return true
		}
	}
	return false
}

func headerVersion(data []byte) string {
	i := bytes.Index(data, pdfMagic)
	if i < 0 {
		return ""
	}

	rest := data[i+len(pdfMagic):]
	end := bytes.IndexAny(rest, "\r\n \t%")
	if end < 0 {
		end = len(rest)
	}
	if end > 8 {
		end = 8
	}
	return strings.TrimSpace(string(rest[:end]))
}
