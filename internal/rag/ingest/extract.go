package ingest

import (
	"bytes"
	"strings"

	"github.com/dslipak/pdf"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
)

// linesPerPseudoPage bounds a synthesized Markdown/plain-text pseudo-page;
// there is no natural pagination for these content types.
const linesPerPseudoPage = 80

// extractText turns raw file bytes into flat text plus a page-offset
// table, dispatching on contentType. PDFs are parsed page-by-page with
// dslipak/pdf so a real upload is either extracted to text or fails
// cleanly, rather than being chunked as binary garbage; Markdown and
// plain text are split into fixed-size pseudo-pages.
func extractText(contentType string, data []byte) (string, []domain.Page, error) {
	if strings.Contains(contentType, "pdf") {
		return extractPDFText(data)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", nil, apperr.New(apperr.KindValidation, "document has no extractable text")
	}
	return text, pseudoPages(text), nil
}

// extractPDFText extracts plain text from a PDF, one domain.Page per PDF
// page. A page whose content stream is null (common for pages holding
// only images or form fields) contributes an empty span rather than
// aborting the whole document.
func extractPDFText(data []byte) (string, []domain.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindValidation, "parse PDF", err)
	}

	var buf strings.Builder
	pages := make([]domain.Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i, StartChar: buf.Len(), EndChar: buf.Len()})
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, domain.Page{Number: i, StartChar: buf.Len(), EndChar: buf.Len()})
			continue
		}
		start := buf.Len()
		buf.WriteString(pageText)
		pages = append(pages, domain.Page{Number: i, StartChar: start, EndChar: buf.Len()})
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return "", nil, apperr.New(apperr.KindValidation, "document has no extractable text")
	}
	return text, pages, nil
}

func pseudoPages(text string) []domain.Page {
	lines := strings.SplitAfter(text, "\n")
	var pages []domain.Page
	offset := 0
	pageStart := 0
	pageNum := 1
	for i, line := range lines {
		offset += len(line)
		if (i+1)%linesPerPseudoPage == 0 || i == len(lines)-1 {
			if offset > pageStart {
				pages = append(pages, domain.Page{Number: pageNum, StartChar: pageStart, EndChar: offset})
				pageNum++
			}
			pageStart = offset
		}
	}
	if len(pages) == 0 {
		pages = append(pages, domain.Page{Number: 1, StartChar: 0, EndChar: len(text)})
	}
	return pages
}
