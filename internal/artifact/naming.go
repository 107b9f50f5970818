package artifact

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const maxSlugLength = 48

// Name derives a request-unique filename for a generated artifact. The
// procedure slug keeps names readable and the ULID suffix keeps concurrent
// writers for the same procedure from colliding.
func Name(procedure, ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return Slug(procedure) + "-" + strings.ToLower(ulid.Make().String()) + ext
}

// Slug lower-cases the value and collapses anything outside [a-z0-9] to a
// single dash.
func Slug(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "artifact"
	}
	return slug
}
