package mime

import "strings"

var defaultExtensions = map[string]MIME{
	".avif": AVIF,
	".css":  CSS,
	".gif":  GIF,
	".htm":  HTML,
	".html": HTML,
	".jpeg": JPEG,
	".jpg":  JPEG,
	".js":   JS,
	".mjs":  JS,
	".json": JSON,
	".md":   MD,
	".pdf":  PDF,
	".png":  PNG,
	".svg":  SVG,
	".txt":  TXT,
	".wasm": WASM,
	".webp": WEBP,
	".xml":  XML,
	".gz":   GZIP,
	".sql":  SQL,
	".yaml": YAML,
	".yml":  YAML,
	".zip":  ZIP,
	".zlib": ZLIB,
	".zstd": ZSTD,
	".ico":  ICO,
}

// defaultCharset defines charsets, used by default for MIMEs unless explicitly set.
var defaultCharset = map[MIME]Charset{
	CSS:  UTF8,
	HTML: UTF8,
	JS:   UTF8,
	XML:  UTF8,
	MD:   UTF8,
	TXT:  UTF8,
}

// Table maps file extensions onto content types. It is filled once at startup and
// only read afterwards.
type Table struct {
	types    map[string]MIME
	fallback MIME
}

// NewTable returns the built-in table extended (or overridden) by extra. Keys of
// extra may be given with or without the leading dot.
func NewTable(extra map[string]string) *Table {
	types := make(map[string]MIME, len(defaultExtensions)+len(extra))
	for ext, mime := range defaultExtensions {
		types[ext] = mime
	}

	for ext, mime := range extra {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		types[strings.ToLower(ext)] = mime
	}

	return &Table{
		types:    types,
		fallback: OctetStream,
	}
}

// ByPath returns the full Content-Type value for the file, charset parameter
// included when the type has a default one.
func (t *Table) ByPath(path string) string {
	mime, found := t.types[extension(path)]
	if !found {
		return t.fallback
	}

	if charset, ok := defaultCharset[mime]; ok {
		return mime + "; charset=" + charset
	}

	return mime
}

// Len returns the number of known extensions.
func (t *Table) Len() int {
	return len(t.types)
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			ext := path[i:]
			for j := 1; j < len(ext); j++ {
				if c := ext[j]; c >= 'A' && c <= 'Z' {
					return strings.ToLower(ext)
				}
			}

			return ext
		case '/':
			return ""
		}
	}

	return ""
}
