package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(2048)
	padding := strings.Repeat("content of the page. ", 200)

	cases := []struct {
		name string
		page pipeline.Page
		want bool
	}{
		{
			name: "NonOKStatusNeverPromotes",
			page: pipeline.Page{StatusCode: 404, Text: ""},
			want: false,
		},
		{
			name: "EmptyTextPromotes",
			page: pipeline.Page{StatusCode: 200, Text: "   "},
			want: true,
		},
		{
			name: "PlainContentStaysOnProbe",
			page: pipeline.Page{
				StatusCode: 200,
				Text:       "a real article",
				RawHTML:    []byte("<html><body>" + padding + "</body></html>"),
			},
			want: false,
		},
		{
			name: "SmallScriptHeavyBodyPromotes",
			page: pipeline.Page{
				StatusCode: 200,
				Text:       "loading",
				RawHTML:    []byte("<html><script>window.boot()</script><body>x</body></html>"),
			},
			want: true,
		},
		{
			name: "ReactRootMarkerPromotes",
			page: pipeline.Page{
				StatusCode: 200,
				Text:       "some shell text",
				RawHTML:    []byte(`<html><body><div id="root"></div>` + padding + `</body></html>`),
			},
			want: true,
		},
		{
			name: "NextMarkerPromotes",
			page: pipeline.Page{
				StatusCode: 200,
				Text:       "shell",
				RawHTML:    []byte(`<html><body><div id="__next"></div>` + padding + `</body></html>`),
			},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, h.ShouldPromote(tc.page))
		})
	}
}

func TestScriptDensityHigh(t *testing.T) {
	t.Parallel()

	assert.False(t, scriptDensityHigh(nil))
	assert.False(t, scriptDensityHigh([]byte("<html><body>plain</body></html>")))
	assert.True(t, scriptDensityHigh([]byte("<script>lots and lots of js</script><p>x</p>")))
}
