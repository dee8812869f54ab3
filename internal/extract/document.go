package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const providerCallTimeout = 30 * time.Second

// BlobDownloader reads stored file bytes by path.
type BlobDownloader interface {
	Download(path string) ([]byte, error)
}

// VisionClient extracts text from binary documents via a multimodal provider.
type VisionClient interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// DocumentExtractor turns an uploaded file into plain text. Plain-text files
// are decoded directly; PDFs go through the local text layer first; anything
// else (and scanned PDFs) is sent to the vision provider.
type DocumentExtractor struct {
	blobs  BlobDownloader
	vision VisionClient // nil when no provider credential is configured
}

func NewDocumentExtractor(blobs BlobDownloader, vision VisionClient) *DocumentExtractor {
	return &DocumentExtractor{blobs: blobs, vision: vision}
}

// Extract downloads the stored object and dispatches by file extension.
// A missing provider credential surfaces as ErrProviderNotConfigured, not as
// an *ExtractionError: the document may be fine, the deployment is not.
func (d *DocumentExtractor) Extract(ctx context.Context, storagePath, fileName string) (string, error) {
	data, err := d.blobs.Download(storagePath)
	if err != nil {
		return "", extractionErrorf(err, "falha ao baixar o arquivo enviado: %v", err)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt":
		return d.extractPlainText(data)
	case ".pdf":
		if text, err := pdfTextLayer(data); err == nil && text != "" {
			return text, nil
		}
		// Scanned or image-only PDF: fall through to the provider.
		return d.extractViaProvider(ctx, fileName, data)
	default:
		return d.extractViaProvider(ctx, fileName, data)
	}
}

func (d *DocumentExtractor) extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", extractionErrorf(nil, "o arquivo .txt não está em UTF-8")
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", extractionErrorf(nil, "o arquivo enviado está vazio")
	}
	return text, nil
}

func (d *DocumentExtractor) extractViaProvider(ctx context.Context, fileName string, data []byte) (string, error) {
	if d.vision == nil {
		return "", ErrProviderNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	text, err := d.vision.ExtractText(ctx, fileName, data)
	if err != nil {
		return "", extractionErrorf(err, "falha ao extrair o texto do documento: %v", err)
	}
	return text, nil
}

// pdfTextLayer reads the embedded text layer of a PDF. The parser panics on
// some malformed files, so the call is isolated and recovered.
func pdfTextLayer(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text layer: %w", err)
	}

	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
