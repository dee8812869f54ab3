package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/atendai/atenda/internal/htmltext"
)

const (
	websiteFetchTimeout = 10 * time.Second
	maxWebsiteBodySize  = 5 << 20 // 5MB
	minWebsiteTextLen   = 20

	websiteUserAgent = "atenda-bot/1.0 (+https://atenda.app; indexador de base de conhecimento)"
)

// WebsiteExtractor fetches a page and reduces it to plain text.
type WebsiteExtractor struct {
	client *http.Client
}

// NewWebsiteExtractor creates a WebsiteExtractor. A nil client uses a default
// one; the fetch timeout is enforced per request via context either way.
func NewWebsiteExtractor(client *http.Client) *WebsiteExtractor {
	if client == nil {
		client = &http.Client{}
	}
	return &WebsiteExtractor{client: client}
}

// Extract GETs the URL and returns the normalized page text plus the page
// <title> (empty when the page has none). Failures are *ExtractionError:
// non-2xx status, timeout (the message names the 10s budget), or normalized
// output shorter than 20 characters.
func (w *WebsiteExtractor) Extract(ctx context.Context, url string) (text, title string, err error) {
	ctx, cancel := context.WithTimeout(ctx, websiteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", extractionErrorf(err, "URL inválida: %v", err)
	}
	req.Header.Set("User-Agent", websiteUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", "", extractionErrorf(err, "tempo limite de %ds excedido ao acessar o site", int(websiteFetchTimeout.Seconds()))
		}
		return "", "", extractionErrorf(err, "não foi possível acessar o site: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", extractionErrorf(nil, "o site retornou status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebsiteBodySize))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", "", extractionErrorf(err, "tempo limite de %ds excedido ao acessar o site", int(websiteFetchTimeout.Seconds()))
		}
		return "", "", extractionErrorf(err, "falha ao ler a resposta do site: %v", err)
	}

	page := string(body)
	text = htmltext.Normalize(page)
	if len(text) < minWebsiteTextLen {
		return "", "", extractionErrorf(nil, "conteúdo insuficiente extraído do site (menos de %d caracteres)", minWebsiteTextLen)
	}

	return text, pageTitle(page), nil
}

// pageTitle returns the text of the first <title> element, if any.
func pageTitle(page string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				if tokenizer.Next() == html.TextToken {
					title := strings.TrimSpace(string(tokenizer.Text()))
					return strings.Join(strings.Fields(title), " ")
				}
				return ""
			}
		}
	}
}
