// Package properties reads and rewrites server.properties files in place.
//
// Comments, blank lines and key order survive a load/save cycle; only the lines of keys
// that were set change. Values use the Java properties escaping the game server writes.
package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

// FileName is the conventional name inside a server directory.
const FileName = "server.properties"

type line struct {
	raw   string
	key   string
	value string
	entry bool
}

// File is an editable properties document bound to a path.
type File struct {
	path  string
	lines []line
	index map[string]int
}

// New returns an empty document that will be written to path.
func New(path string) *File {
	return &File{path: path, index: make(map[string]int)}
}

// Load parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(path, string(data)), nil
}

// Parse builds a document from text without touching the filesystem.
func Parse(path, content string) *File {
	f := New(path)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return f
	}

	for _, raw := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(raw)

		// Skip comments and empty lines
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			f.lines = append(f.lines, line{raw: raw})
			continue
		}

		key, value := splitEntry(trimmed)
		f.index[key] = len(f.lines)
		f.lines = append(f.lines, line{raw: raw, key: key, value: value, entry: true})
	}

	return f
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Get returns the unescaped value of key.
func (f *File) Get(key string) (string, bool) {
	i, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.lines[i].value, true
}

// Int returns key parsed as an integer.
func (f *File) Int(key string) (int, error) {
	v, ok := f.Get(key)
	if !ok {
		return 0, fmt.Errorf("property %s is missing in %s", key, f.path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("property %s in %s is not a number: %w", key, f.path, err)
	}
	return n, nil
}

// Set updates key in place, or appends it when absent.
func (f *File) Set(key, value string) {
	raw := escape(key, true) + "=" + escape(value, false)
	if i, ok := f.index[key]; ok {
		f.lines[i] = line{raw: raw, key: key, value: value, entry: true}
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{raw: raw, key: key, value: value, entry: true})
}

// SetAll applies every pair in key order.
func (f *File) SetAll(values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.Set(k, values[k])
	}
}

// Keys returns the keys in file order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for _, l := range f.lines {
		if l.entry {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// String renders the document.
func (f *File) String() string {
	var b strings.Builder
	for _, l := range f.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// Save writes the document atomically next to its path.
func (f *File) Save() error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".properties-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(f.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

// Update loads path, applies values and saves it.
func Update(path string, values map[string]string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	f.SetAll(values)
	return f.Save()
}

// splitEntry splits at the first unescaped '=' or ':'.
func splitEntry(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '=', ':':
			return unescape(strings.TrimSpace(s[:i])), unescape(strings.TrimLeft(s[i+1:], " \t"))
		}
	}
	return unescape(s), ""
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	in := []rune(s)
	out := make([]rune, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c != '\\' || i+1 >= len(in) {
			out = append(out, c)
			continue
		}
		i++
		switch in[i] {
		case 't':
			out = append(out, '\t')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 'f':
			out = append(out, '\f')
		case 'u':
			if i+4 < len(in) {
				if n, err := strconv.ParseUint(string(in[i+1:i+5]), 16, 16); err == nil {
					out = append(out, rune(n))
					i += 4
					continue
				}
			}
			out = append(out, 'u')
		default:
			out = append(out, in[i])
		}
	}
	return string(joinSurrogates(out))
}

// joinSurrogates merges UTF-16 surrogate halves decoded from consecutive \u escapes.
func joinSurrogates(runes []rune) []rune {
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		if utf16.IsSurrogate(runes[i]) && i+1 < len(runes) {
			if r := utf16.DecodeRune(runes[i], runes[i+1]); r != unicode.ReplacementChar {
				out = append(out, r)
				i++
				continue
			}
		}
		out = append(out, runes[i])
	}
	return out
}

func escape(s string, isKey bool) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '=' || r == ':' || r == '#' || r == '!':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == ' ' && (isKey || i == 0):
			b.WriteString(`\ `)
		case r < 0x20 || r > 0x7e:
			for _, u := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, `\u%04X`, u)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
