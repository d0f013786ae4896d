// Package document extracts study material from uploaded files.
package document

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Errors returned by Extract.
var (
	ErrUnsupportedType = errors.New("document: unsupported file type")
	ErrNoContent       = errors.New("document: no extractable content")
)

const csvRowsPerPage = 50

// Document is an uploaded file.
type Document struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

// Page is the text of one page, sheet or section, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Image is an image upload, ready to be sent to a vision model.
type Image struct {
	MIMEType string
	DataURL  string
}

// Content is what Extract found in a document: text pages or a single image.
type Content struct {
	Pages []Page
	Image *Image
}

// Extract reads the document according to its file extension, falling
// back to the MIME type when the name has none.
func Extract(doc Document) (Content, error) {
	if len(doc.Data) == 0 {
		return Content{}, ErrNoContent
	}

	var (
		content Content
		err     error
	)
	switch kind(doc) {
	case "text":
		content.Pages = splitFormFeeds(string(doc.Data))
	case "csv":
		content.Pages, err = extractCSV(doc.Data)
	case "xlsx":
		content.Pages, err = extractXLSX(doc.Data)
	case "pdf":
		content.Pages, err = extractPDF(doc.Data)
	case "image":
		mimeType := imageMIME(doc)
		content.Image = &Image{
			MIMEType: mimeType,
			DataURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(doc.Data),
		}
		return content, nil
	default:
		return Content{}, fmt.Errorf("%w: %s", ErrUnsupportedType, displayName(doc))
	}
	if err != nil {
		return Content{}, err
	}

	content.Pages = nonEmpty(content.Pages)
	if len(content.Pages) == 0 {
		return Content{}, ErrNoContent
	}
	slog.Debug("document extracted", "name", doc.Name, "pages", len(content.Pages))
	return content, nil
}

func kind(doc Document) string {
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".txt", ".md", ".markdown", ".text":
		return "text"
	case ".csv":
		return "csv"
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".pdf":
		return "pdf"
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
		return "image"
	case "":
	default:
		return ""
	}

	mimeType := strings.ToLower(doc.MIMEType)
	switch {
	case strings.HasPrefix(mimeType, "text/csv"):
		return "csv"
	case strings.HasPrefix(mimeType, "text/"):
		return "text"
	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case mimeType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	}
	return ""
}

func imageMIME(doc Document) string {
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	}
	if doc.MIMEType != "" {
		return doc.MIMEType
	}
	return "application/octet-stream"
}

func displayName(doc Document) string {
	if doc.Name != "" {
		return doc.Name
	}
	if doc.MIMEType != "" {
		return doc.MIMEType
	}
	return "unnamed"
}

func splitFormFeeds(text string) []Page {
	var pages []Page
	for i, part := range strings.Split(text, "\f") {
		pages = append(pages, Page{Number: i + 1, Text: part})
	}
	return pages
}

func extractCSV(data []byte) ([]Page, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoContent
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var (
		pages []Page
		sb    strings.Builder
		rows  int
	)
	flush := func() {
		if sb.Len() > 0 {
			pages = append(pages, Page{Number: len(pages) + 1, Text: sb.String()})
			sb.Reset()
		}
		rows = 0
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		sb.WriteString(renderRow(header, record))
		sb.WriteString("\n")
		rows++
		if rows == csvRowsPerPage {
			flush()
		}
	}
	flush()
	return pages, nil
}

func extractXLSX(data []byte) ([]Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var pages []Page
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s\n", sheet)
		header := rows[0]
		for _, row := range rows[1:] {
			sb.WriteString(renderRow(header, row))
			sb.WriteString("\n")
		}
		if len(rows) == 1 {
			sb.WriteString(strings.Join(header, " | "))
		}
		pages = append(pages, Page{Number: i + 1, Text: sb.String()})
	}
	return pages, nil
}

// extractPDF returns the text layer of each page. Scanned pages without a
// text layer come back empty and are dropped by Extract.
func extractPDF(data []byte) (pages []Page, err error) {
	// The reader panics on some malformed files instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// renderRow writes a row as "header: value" pairs so the model sees which
// column each value belongs to.
func renderRow(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			parts = append(parts, strings.TrimSpace(header[i])+": "+v)
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "; ")
}

func nonEmpty(pages []Page) []Page {
	out := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, p)
		}
	}
	return out
}
