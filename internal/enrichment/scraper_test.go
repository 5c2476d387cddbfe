package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractContactPrefersLinks(t *testing.T) {
	page := `<html><body>
		<p>Write to info@ignored.test</p>
		<a href="mailto:Bookings@casaflores.test?subject=Hi">Email us</a>
		<a href="tel:+1 555 010 0200">Call</a>
		<script>var x = "bot@trap.test";</script>
	</body></html>`

	res, err := ExtractContact(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Bookings@casaflores.test", res.Email)
	assert.Equal(t, "+1 555 010 0200", res.Phone)
}

func TestExtractContactFromText(t *testing.T) {
	page := `<div>Reach us at <b>hola@casaflores.test</b> or (555) 010-0200.</div><script>x="bot@trap.test"</script>`

	res, err := ExtractContact(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "hola@casaflores.test", res.Email)
	assert.Equal(t, "(555) 010-0200", res.Phone)
}

func TestScrapeFallsBackToContactPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<p>Call <a href="tel:5550100200">us</a></p>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="mailto:team@casaflores.test">mail</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := &Scraper{Client: srv.Client()}
	res, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "team@casaflores.test", res.Email)
	assert.Equal(t, "5550100200", res.Phone)
	assert.Equal(t, srv.URL+"/contact", res.Source)
}

func TestScrapeUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &Scraper{Client: srv.Client()}
	_, err := s.Scrape(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestScrapeRejectsBadURL(t *testing.T) {
	_, err := NewScraper().Scrape(context.Background(), "ftp://files.test")
	assert.Error(t, err)
}
