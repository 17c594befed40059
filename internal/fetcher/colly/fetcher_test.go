package collyfetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/tyfong/aiparserpipeline/internal/fetcher/colly"
)

const samplePage = `<html>
<head><title>  Sample Title  </title></head>
<body>
  <script>var hidden = true;</script>
  <style>.x { color: red }</style>
  <p>Visible paragraph.</p>
</body>
</html>`

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "test-bot/1.0"})
	page, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "test-bot/1.0", gotUA)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "Sample Title", page.Title)
	assert.Contains(t, page.Text, "Visible paragraph.")
	assert.NotContains(t, page.Text, "hidden")
	assert.NotContains(t, page.Text, "color: red")
	assert.False(t, page.UsedHeadless)
	assert.Equal(t, "Sample Title.\n\nVisible paragraph.", page.FullText())
}

func TestFetcher_Fetch_HTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{})
	_, err := fetcher.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetcher_Fetch_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := collyfetcher.New(collyfetcher.Config{})
	_, err := fetcher.Fetch(ctx, "https://example.com")
	assert.Error(t, err)
}
