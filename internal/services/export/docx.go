package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/dictumlegal/dictum/internal/models"
)

// DOCXContentType is the MIME type of rendered artifacts.
const DOCXContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Minimal OOXML package parts. A valid .docx needs the content types
// manifest, the package relationships, and the document body.
const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentFooter = `</w:body></w:document>`
)

// renderDOCX packages the letter as a .docx archive: a bold title
// heading, the export date, the recipient block, then the content with
// each line as a paragraph. Blank lines become empty paragraphs so
// spacing survives the round trip into Word.
func renderDOCX(letter *models.DemandLetter) ([]byte, error) {
	var body strings.Builder
	body.WriteString(documentHeader)

	writeHeading(&body, letter.Title)
	writeParagraph(&body, time.Now().Format("January 2, 2006"))
	writeParagraph(&body, "")
	for _, line := range recipientLines(letter.Recipient) {
		writeParagraph(&body, line)
	}
	writeParagraph(&body, "")

	for _, line := range strings.Split(strings.ReplaceAll(letter.Content, "\r\n", "\n"), "\n") {
		writeParagraph(&body, line)
	}
	body.WriteString(documentFooter)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", body.String()},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.data)); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeParagraph(b *strings.Builder, line string) {
	b.WriteString("<w:p>")
	if line != "" {
		b.WriteString(`<w:r><w:t xml:space="preserve">`)
		b.WriteString(escapeXML(line))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}

func writeHeading(b *strings.Builder, text string) {
	b.WriteString(`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">`)
	b.WriteString(escapeXML(text))
	b.WriteString("</w:t></w:r></w:p>")
}

// recipientLines flattens the recipient block into address lines,
// skipping empty fields.
func recipientLines(r models.RecipientBlock) []string {
	var lines []string
	for _, v := range []string{r.Name, r.Company, r.Address, r.Email} {
		if v != "" {
			lines = append(lines, v)
		}
	}
	return lines
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// sanitizeFilename creates a safe download filename from a letter title.
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}

	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "demand-letter"
	}
	return result
}
