package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebsiteExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "atenda-bot") {
			t.Errorf("user agent = %q", ua)
		}
		w.Write([]byte(`<html><head><title> Loja do João </title></head>
<body><nav>menu</nav><p>Vendemos peças de reposição para notebooks e celulares.</p></body></html>`))
	}))
	defer srv.Close()

	e := NewWebsiteExtractor(nil)
	text, title, err := e.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "peças de reposição") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "menu") {
		t.Errorf("nav content leaked into text: %q", text)
	}
	if title != "Loja do João" {
		t.Errorf("title = %q", title)
	}
}

func TestWebsiteExtractNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := NewWebsiteExtractor(nil)
	_, _, err := e.Extract(context.Background(), srv.URL)

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	if !strings.Contains(extractionErr.Cause, "404") {
		t.Errorf("cause should name the status: %q", extractionErr.Cause)
	}
}

func TestWebsiteExtractInsufficientContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>oi</p></body></html>"))
	}))
	defer srv.Close()

	e := NewWebsiteExtractor(nil)
	_, _, err := e.Extract(context.Background(), srv.URL)

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	if !strings.Contains(extractionErr.Cause, "insuficiente") {
		t.Errorf("cause = %q", extractionErr.Cause)
	}
}

func TestWebsiteExtractTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	// The caller's deadline fires first; the message still names the fetch budget.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e := NewWebsiteExtractor(nil)
	_, _, err := e.Extract(ctx, srv.URL)

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	if !strings.Contains(extractionErr.Cause, "10s") {
		t.Errorf("timeout cause should name the budget: %q", extractionErr.Cause)
	}
}

func TestWebsiteExtractUnreachable(t *testing.T) {
	e := NewWebsiteExtractor(nil)
	_, _, err := e.Extract(context.Background(), "http://127.0.0.1:1")

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
}

func TestWebsiteExtractNoTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Conteúdo suficiente para passar do mínimo exigido.</p></body></html>"))
	}))
	defer srv.Close()

	e := NewWebsiteExtractor(nil)
	_, title, err := e.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "" {
		t.Errorf("title = %q, want empty", title)
	}
}
