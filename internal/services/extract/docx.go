package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCXText extracts plain text from DOCX bytes, truncated to
// maxChars. A .docx file is a zip archive; the document body lives in
// word/document.xml as <w:t> text runs grouped into <w:p> paragraphs.
func extractDOCXText(data []byte, maxChars int) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX archive: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("DOCX archive has no word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(rc)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var text string
				if err := decoder.DecodeElement(&text, &el); err != nil {
					continue
				}
				sb.WriteString(text)
			}
		case xml.EndElement:
			// Paragraph and line-break boundaries become newlines
			if el.Name.Local == "p" || el.Name.Local == "br" {
				sb.WriteString("\n")
			}
		}

		if sb.Len() > maxChars {
			break
		}
	}

	return truncateText(sb.String(), maxChars), nil
}
