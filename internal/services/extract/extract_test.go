package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/dictumlegal/dictum/internal/storage"
)

// buildDOCX assembles a minimal .docx archive with the given paragraphs.
func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>")
		body.WriteString(p)
		body.WriteString("</w:t></w:r></w:p>")
	}
	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body.String())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestExtractDOCXText(t *testing.T) {
	data := buildDOCX(t, "Dear Sir or Madam,", "We represent the claimant.", "Payment is due within 14 days.")

	text, err := extractDOCXText(data, 50000)
	require.NoError(t, err)

	assert.Contains(t, text, "Dear Sir or Madam,")
	assert.Contains(t, text, "We represent the claimant.")
	// Paragraph boundaries become newlines
	assert.Contains(t, text, "claimant.\n")
}

func TestExtractDOCXTextTruncation(t *testing.T) {
	data := buildDOCX(t, strings.Repeat("lorem ipsum ", 100))

	text, err := extractDOCXText(data, 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), 50)
}

func TestExtractDOCXTextTruncationKeepsRunesIntact(t *testing.T) {
	// Each § is two bytes, so odd byte caps land mid-rune.
	data := buildDOCX(t, strings.Repeat("§", 100))

	for _, max := range []int{49, 50, 51} {
		text, err := extractDOCXText(data, max)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(text), max)
		assert.True(t, utf8.ValidString(text), "cap %d produced invalid UTF-8", max)
	}
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", truncateText("abc", 10))
	assert.Equal(t, "ab", truncateText("abcd", 2))
	// Never split a multi-byte sequence
	assert.Equal(t, "é", truncateText("éé", 3))
	assert.Equal(t, "", truncateText("é", 1))
}

func TestExtractDOCXTextNotAnArchive(t *testing.T) {
	_, err := extractDOCXText([]byte("plain text, not a zip"), 50000)
	assert.Error(t, err)
}

func TestExtractDOCXTextMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = extractDOCXText(buf.Bytes(), 50000)
	assert.ErrorContains(t, err, "word/document.xml")
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        string
	}{
		{ContentTypePDF, "report.pdf", ContentTypePDF},
		{"application/pdf; charset=binary", "report.pdf", ContentTypePDF},
		{ContentTypeDOCX, "contract.docx", ContentTypeDOCX},
		{"application/octet-stream", "report.pdf", ContentTypePDF},
		{"application/octet-stream", "contract.DOCX", ContentTypeDOCX},
		{"image/png", "photo.png", "image/png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeType(tt.contentType, tt.filename), "%s %s", tt.contentType, tt.filename)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(ContentTypePDF, "a.pdf"))
	assert.True(t, Supported("", "b.docx"))
	assert.False(t, Supported("image/png", "c.png"))
	assert.False(t, Supported("text/plain", "d.txt"))
}

func TestExtractTextUnsupported(t *testing.T) {
	svc := NewService(nil, nil, common.NewSilentLogger(), 0)

	_, err := svc.ExtractText("image/png", "photo.png", []byte{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

// fakeDocStore is an in-memory DocumentStore for service tests.
type fakeDocStore struct {
	docs map[string]*models.SourceDocument
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*models.SourceDocument)}
}

func (f *fakeDocStore) Get(ctx context.Context, id string) (*models.SourceDocument, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, interfaces.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocStore) Save(ctx context.Context, doc *models.SourceDocument) error {
	cp := *doc
	f.docs[doc.DocumentID] = &cp
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDocStore) ListByFirm(ctx context.Context, firmID, ownerID string) ([]*models.SourceDocument, error) {
	var out []*models.SourceDocument
	for _, d := range f.docs {
		if d.FirmID == firmID && (ownerID == "" || d.OwnerID == ownerID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocStore) Close() error { return nil }

var _ interfaces.DocumentStore = (*fakeDocStore)(nil)

func TestProcessDOCX(t *testing.T) {
	blobs, err := storage.NewFileBlobStore(common.NewSilentLogger(), &common.FileBlobConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	docs := newFakeDocStore()
	svc := NewService(docs, blobs, common.NewSilentLogger(), 0)
	ctx := context.Background()

	data := buildDOCX(t, "The undersigned demands payment.")
	require.NoError(t, blobs.Put(ctx, "uploads/firm1/doc1", data))

	doc := &models.SourceDocument{
		DocumentID:       "doc1",
		FirmID:           "firm1",
		OwnerID:          "user1",
		Filename:         "demand.docx",
		ContentType:      ContentTypeDOCX,
		BlobKey:          "uploads/firm1/doc1",
		ExtractionStatus: models.ExtractionPending,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, docs.Save(ctx, doc))
	require.NoError(t, svc.Process(ctx, doc))

	saved, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.ExtractionDone, saved.ExtractionStatus)
	assert.Contains(t, saved.ExtractedText, "demands payment")
	assert.Empty(t, saved.ExtractionError)
}

func TestProcessRecordsFailure(t *testing.T) {
	blobs, err := storage.NewFileBlobStore(common.NewSilentLogger(), &common.FileBlobConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	docs := newFakeDocStore()
	svc := NewService(docs, blobs, common.NewSilentLogger(), 0)
	ctx := context.Background()

	// Claims to be a DOCX but the bytes are garbage
	require.NoError(t, blobs.Put(ctx, "uploads/firm1/bad", []byte("not a zip")))

	doc := &models.SourceDocument{
		DocumentID:       "bad",
		FirmID:           "firm1",
		Filename:         "bad.docx",
		ContentType:      ContentTypeDOCX,
		BlobKey:          "uploads/firm1/bad",
		ExtractionStatus: models.ExtractionPending,
	}
	require.NoError(t, docs.Save(ctx, doc))
	require.NoError(t, svc.Process(ctx, doc))

	saved, err := docs.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, models.ExtractionFailed, saved.ExtractionStatus)
	assert.NotEmpty(t, saved.ExtractionError)
}

func TestCollectText(t *testing.T) {
	docs := newFakeDocStore()
	svc := NewService(docs, nil, common.NewSilentLogger(), 0)
	ctx := context.Background()

	require.NoError(t, docs.Save(ctx, &models.SourceDocument{
		DocumentID: "d1", FirmID: "firm1", Filename: "report.pdf",
		ExtractionStatus: models.ExtractionDone, ExtractedText: "Collision at Main St.",
	}))
	require.NoError(t, docs.Save(ctx, &models.SourceDocument{
		DocumentID: "d2", FirmID: "firm1", Filename: "invoice.docx",
		ExtractionStatus: models.ExtractionDone, ExtractedText: "Amount due: $4,200",
	}))
	require.NoError(t, docs.Save(ctx, &models.SourceDocument{
		DocumentID: "d3", FirmID: "firm1", Filename: "pending.pdf",
		ExtractionStatus: models.ExtractionPending,
	}))

	text, err := svc.CollectText(ctx, "firm1", []string{"d1", "d2", "d3"})
	require.NoError(t, err)

	assert.Contains(t, text, "--- report.pdf ---")
	assert.Contains(t, text, "Collision at Main St.")
	assert.Contains(t, text, "Amount due: $4,200")
	assert.NotContains(t, text, "pending.pdf")
}

func TestCollectTextCrossFirm(t *testing.T) {
	docs := newFakeDocStore()
	svc := NewService(docs, nil, common.NewSilentLogger(), 0)
	ctx := context.Background()

	require.NoError(t, docs.Save(ctx, &models.SourceDocument{
		DocumentID: "other", FirmID: "firm2",
		ExtractionStatus: models.ExtractionDone, ExtractedText: "secret",
	}))

	_, err := svc.CollectText(ctx, "firm1", []string{"other"})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCollectTextEmpty(t *testing.T) {
	svc := NewService(newFakeDocStore(), nil, common.NewSilentLogger(), 0)

	text, err := svc.CollectText(context.Background(), "firm1", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}
