package download

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultExt is used when the source URL carries no usable extension.
const DefaultExt = ".mp4"

const reservedChars = `/\:*?"<>|`

// SanitizeFileName turns an arbitrary title into a single path element that
// cannot escape its directory.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(reservedChars, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Join(strings.Fields(b.String()), " ")
	clean = strings.Trim(clean, ". ")
	for strings.Contains(clean, "__") {
		clean = strings.ReplaceAll(clean, "__", "_")
	}
	if clean == "" {
		return "download"
	}
	return clean
}

// ExtFromURL returns the lower-cased extension of the URL path, or DefaultExt.
func ExtFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return DefaultExt
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return DefaultExt
		}
	}
	return ext
}

// FileName builds the on-disk name for a title. Episodes with known season
// and episode numbers get an SxxEyy suffix.
func FileName(title, rawURL string, season, episode *int) string {
	base := title
	if season != nil && episode != nil {
		base = fmt.Sprintf("%s S%02dE%02d", title, *season, *episode)
	}
	return SanitizeFileName(base) + ExtFromURL(rawURL)
}

// WithSuffix inserts " suffix" between the base name and its extension.
func WithSuffix(fileName, suffix string) string {
	ext := path.Ext(fileName)
	return strings.TrimSuffix(fileName, ext) + " " + suffix + ext
}
