package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

func TestExtract_PlainText(t *testing.T) {
	content, err := Extract(Document{Name: "notes.txt", Data: []byte("Page one.\fPage two.\f  \f")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(content.Pages) != 2 {
		t.Fatalf("len(Pages) = %d, want 2", len(content.Pages))
	}
	if content.Pages[1].Number != 2 || content.Pages[1].Text != "Page two." {
		t.Errorf("Pages[1] = %+v, want {2 Page two.}", content.Pages[1])
	}
	if content.Image != nil {
		t.Error("Image should be nil for text")
	}
}

func TestExtract_MIMEFallback(t *testing.T) {
	content, err := Extract(Document{MIMEType: "text/markdown", Data: []byte("# Title\n\nBody")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(content.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(content.Pages))
	}
}

func TestExtract_CSV(t *testing.T) {
	data := "term,definition\nmitosis,cell division\nosmosis,water diffusion\n"
	content, err := Extract(Document{Name: "bio.csv", Data: []byte(data)})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(content.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(content.Pages))
	}
	if !strings.Contains(content.Pages[0].Text, "term: mitosis; definition: cell division") {
		t.Errorf("unexpected csv rendering: %q", content.Pages[0].Text)
	}
}

func TestExtract_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Capital")
	f.SetCellValue("Sheet1", "B1", "Country")
	f.SetCellValue("Sheet1", "A2", "Paris")
	f.SetCellValue("Sheet1", "B2", "France")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	content, err := Extract(Document{Name: "capitals.xlsx", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(content.Pages) != 1 {
		t.Fatalf("len(Pages) = %d, want 1", len(content.Pages))
	}
	if !strings.Contains(content.Pages[0].Text, "Capital: Paris; Country: France") {
		t.Errorf("unexpected sheet rendering: %q", content.Pages[0].Text)
	}
}

func TestExtract_Image(t *testing.T) {
	content, err := Extract(Document{Name: "diagram.PNG", Data: []byte{0x89, 'P', 'N', 'G'}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if content.Image == nil {
		t.Fatal("Image is nil")
	}
	if !strings.HasPrefix(content.Image.DataURL, "data:image/png;base64,") {
		t.Errorf("DataURL = %q", content.Image.DataURL)
	}
}

func TestExtract_ImageFormats(t *testing.T) {
	tests := map[string]string{
		"scan.gif":   "data:image/gif;base64,",
		"scan.BMP":   "data:image/bmp;base64,",
		"photo.jpeg": "data:image/jpeg;base64,",
		"photo.webp": "data:image/webp;base64,",
	}
	for name, prefix := range tests {
		content, err := Extract(Document{Name: name, Data: []byte{1, 2, 3}})
		if err != nil {
			t.Fatalf("Extract(%s) error = %v", name, err)
		}
		if content.Image == nil || !strings.HasPrefix(content.Image.DataURL, prefix) {
			t.Errorf("Extract(%s) image = %+v, want prefix %q", name, content.Image, prefix)
		}
	}
}

// buildPDF writes a minimal PDF with one page per entry in texts.
func buildPDF(texts ...string) []byte {
	n := len(texts)
	fontObj := 3 + 2*n
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, n)
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range texts {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", 4+2*i, fontObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	data := buildPDF("Mitosis is cell division.", "Osmosis moves water.")

	for _, doc := range []Document{
		{Name: "biology.pdf", Data: data},
		{MIMEType: "application/pdf", Data: data},
	} {
		content, err := Extract(doc)
		if err != nil {
			t.Fatalf("Extract(%q) error = %v", doc.Name+doc.MIMEType, err)
		}
		if len(content.Pages) != 2 {
			t.Fatalf("len(Pages) = %d, want 2", len(content.Pages))
		}
		if content.Pages[0].Number != 1 || !strings.Contains(content.Pages[0].Text, "Mitosis") {
			t.Errorf("Pages[0] = %+v", content.Pages[0])
		}
		if content.Pages[1].Number != 2 || !strings.Contains(content.Pages[1].Text, "Osmosis") {
			t.Errorf("Pages[1] = %+v", content.Pages[1])
		}
	}
}

func TestExtract_BrokenPDF(t *testing.T) {
	_, err := Extract(Document{Name: "broken.pdf", Data: []byte("%PDF-1.4 truncated")})
	if err == nil {
		t.Fatal("Extract() error = nil, want error")
	}
	if errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Extract() error = %v, want a read error", err)
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want error
	}{
		{"empty data", Document{Name: "a.txt"}, ErrNoContent},
		{"whitespace only", Document{Name: "a.txt", Data: []byte("  \n ")}, ErrNoContent},
		{"word", Document{Name: "a.docx", Data: []byte("PK")}, ErrUnsupportedType},
		{"unknown mime", Document{MIMEType: "application/zip", Data: []byte("PK")}, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.doc)
			if !errors.Is(err, tt.want) {
				t.Errorf("Extract() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "First sentence. Second sentence."},
		{Number: 2, Text: "Third sentence! Fourth?"},
	}

	chunks := Split(pages, 40)

	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want at least 2", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > 40 {
			t.Errorf("chunk too long (%d): %q", len(c.Text), c.Text)
		}
		if len(c.Pages) == 0 {
			t.Errorf("chunk %q has no pages", c.Text)
		}
	}
	if got := chunks[0].Text; got != "First sentence. Second sentence." {
		t.Errorf("chunks[0] = %q", got)
	}
	if chunks[len(chunks)-1].Pages[0] != 2 {
		t.Errorf("last chunk pages = %v, want [2]", chunks[len(chunks)-1].Pages)
	}
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("Привет мир. ", 4)

	chunks := Split([]Page{{Number: 1, Text: text}}, 24)

	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > 24 {
			t.Errorf("chunk has %d characters: %q", n, c.Text)
		}
		if c.Text != "Привет мир. Привет мир." {
			t.Errorf("chunk = %q", c.Text)
		}
	}
}

func TestSplit_SingleChunkSpansPages(t *testing.T) {
	chunks := Split([]Page{{Number: 3, Text: "A."}, {Number: 4, Text: "B."}}, 1000)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if len(chunks[0].Pages) != 2 || chunks[0].Pages[0] != 3 || chunks[0].Pages[1] != 4 {
		t.Errorf("Pages = %v, want [3 4]", chunks[0].Pages)
	}
}

func TestSentences_CollapsesWhitespace(t *testing.T) {
	got := sentences("Line one\ncontinues here.   Next\tone.\n\nHeading\n\nBody")
	want := []string{"Line one continues here.", "Next one.", "Heading", "Body"}
	if len(got) != len(want) {
		t.Fatalf("sentences() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentences()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
