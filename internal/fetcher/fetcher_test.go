package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *Fetcher {
	opts := DefaultOptions()
	opts.AllowedDomains = nil
	opts.UserAgents = []string{"mercado-test-agent"}
	return New(opts, nil)
}

func TestFetchHTML(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><li class="ui-search-result">Fritadeira</li></body></html>`)
	}))
	defer srv.Close()

	f := testFetcher()
	html, err := f.FetchHTML(context.Background(), srv.URL+"/fritadeira")
	require.NoError(t, err)
	assert.Contains(t, html, "ui-search-result")
	assert.Equal(t, "mercado-test-agent", gotUA)
	assert.Contains(t, gotLang, "pt-BR")

	// revisiting the same URL is allowed
	_, err = f.FetchHTML(context.Background(), srv.URL+"/fritadeira")
	require.NoError(t, err)
}

func TestFetchHTMLStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testFetcher().FetchHTML(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchHTMLEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testFetcher().FetchHTML(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestFetchHTMLDisallowedDomain(t *testing.T) {
	f := New(DefaultOptions(), nil)
	_, err := f.FetchHTML(context.Background(), "http://example.com/")
	assert.Error(t, err)
}
