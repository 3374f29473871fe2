package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"The Matrix (1999)":       "The Matrix (1999)",
		"Star Wars: A New Hope":   "Star Wars_ A New Hope",
		"../../etc/passwd":        "_.._etc_passwd",
		"a/b\\c*d?e\"f<g>h|i":     "a_b_c_d_e_f_g_h_i",
		"  lots   of  spaces  ":  "lots of spaces",
		"tab\tdropped":           "tabdropped",
		"bell\x07and\x00nul":      "bellandnul",
		"trailing dots...":        "trailing dots",
		"":                        "download",
		"...":                     "download",
		"Ünïcödé 映画":              "Ünïcödé 映画",
		"many::::colons":          "many_colons",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), "input %q", in)
	}
}

func TestExtFromURL(t *testing.T) {
	t.Run("Known extension", func(t *testing.T) {
		assert.Equal(t, ".mkv", ExtFromURL("http://host/movie/u/p/123.mkv"))
		assert.Equal(t, ".mp4", ExtFromURL("http://host/movie/u/p/123.MP4?token=abc"))
	})

	t.Run("Missing or unusable extension", func(t *testing.T) {
		assert.Equal(t, DefaultExt, ExtFromURL("http://host/movie/u/p/123"))
		assert.Equal(t, DefaultExt, ExtFromURL("http://host/stream.m3u8-x"))
		assert.Equal(t, DefaultExt, ExtFromURL("http://host/file.toolongext"))
		assert.Equal(t, DefaultExt, ExtFromURL("://bad url"))
	})
}

func TestFileName(t *testing.T) {
	season, episode := 2, 5

	assert.Equal(t, "Movie.ts", FileName("Movie", "http://h/1.ts", nil, nil))
	assert.Equal(t, "Show S02E05.mkv", FileName("Show", "http://h/1.mkv", &season, &episode))
	assert.Equal(t, "Show.mp4", FileName("Show", "http://h/1", &season, nil), "suffix needs both numbers")
	assert.Equal(t, "a_b S02E05.mp4", FileName("a/b", "http://h/1.mp4", &season, &episode))
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "Pilot [2].mp4", WithSuffix("Pilot.mp4", "[2]"))
	assert.Equal(t, "Show S01E02 [9-2].mkv", WithSuffix("Show S01E02.mkv", "[9-2]"))
	assert.Equal(t, "noext [1]", WithSuffix("noext", "[1]"))
}
