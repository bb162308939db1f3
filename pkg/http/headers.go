package http

import (
	"net/http"
	"strings"

	"github.com/go-http-utils/headers"
)

// Header is one request header entry.
type Header struct {
	Name  string
	Value string
}

// HeaderSet is an ordered multimap of request headers with case-insensitive
// lookup. Range is kept as at most one entry.
type HeaderSet struct {
	entries []Header
}

// NewHeaderSet returns a set holding the given name/value pairs in order.
func NewHeaderSet(pairs ...string) *HeaderSet {
	h := &HeaderSet{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}

	return h
}

// HeaderSetFromMap converts a map to a set. Entry order follows map
// iteration and is therefore unspecified.
func HeaderSetFromMap(m map[string]string) *HeaderSet {
	h := &HeaderSet{}
	for k, v := range m {
		h.Add(k, v)
	}

	return h
}

// ParseHeaderList parses "Name: value" lines separated by CRLF or LF.
// Blank lines, lines without a colon and entries with an empty name are skipped.
func ParseHeaderList(text string) *HeaderSet {
	h := &HeaderSet{}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		h.Add(name, strings.TrimSpace(value))
	}

	return h
}

// Add appends a header. Adding Range replaces any existing Range entry.
func (h *HeaderSet) Add(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	if isRange(name) {
		h.Set(name, value)
		return
	}

	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Set replaces every entry named name with a single one, keeping the position
// of the first occurrence.
func (h *HeaderSet) Set(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	out := h.entries[:0]
	placed := false

	for _, e := range h.entries {
		if !strings.EqualFold(e.Name, name) {
			out = append(out, e)
			continue
		}

		if !placed {
			out = append(out, Header{Name: name, Value: value})
			placed = true
		}
	}

	if !placed {
		out = append(out, Header{Name: name, Value: value})
	}

	h.entries = out
}

// Get returns the first value for name.
func (h *HeaderSet) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}

	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Value, true
		}
	}

	return "", false
}

// Values returns every value for name in insertion order.
func (h *HeaderSet) Values(name string) []string {
	if h == nil {
		return nil
	}

	var values []string

	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			values = append(values, e.Value)
		}
	}

	return values
}

// Has reports whether name is present.
func (h *HeaderSet) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Del removes every entry named name.
func (h *HeaderSet) Del(name string) {
	if h == nil {
		return
	}

	out := h.entries[:0]
	for _, e := range h.entries {
		if !strings.EqualFold(e.Name, name) {
			out = append(out, e)
		}
	}

	h.entries = out
}

// Len returns the number of entries.
func (h *HeaderSet) Len() int {
	if h == nil {
		return 0
	}

	return len(h.entries)
}

// Entries returns a copy of the entries in order.
func (h *HeaderSet) Entries() []Header {
	if h == nil {
		return nil
	}

	out := make([]Header, len(h.entries))
	copy(out, h.entries)

	return out
}

// Clone returns an independent copy.
func (h *HeaderSet) Clone() *HeaderSet {
	return &HeaderSet{entries: h.Entries()}
}

// Range parses the Range entry if present.
func (h *HeaderSet) Range() (ByteRange, bool, error) {
	v, ok := h.Get(headers.Range)
	if !ok {
		return ByteRange{}, false, nil
	}

	r, err := ParseRange(v)
	if err != nil {
		return ByteRange{}, true, err
	}

	return r, true, nil
}

// SetRange replaces the Range entry with one synthesized from r.
func (h *HeaderSet) SetRange(r ByteRange) {
	h.Set(headers.Range, r.HeaderValue())
}

// WithoutRange returns a copy with any Range entry removed.
func (h *HeaderSet) WithoutRange() *HeaderSet {
	c := h.Clone()
	c.Del(headers.Range)

	return c
}

// String renders the set as "Name: value\r\n" lines.
func (h *HeaderSet) String() string {
	var sb strings.Builder

	for _, e := range h.Entries() {
		sb.WriteString(e.Name)
		sb.WriteString(": ")
		sb.WriteString(e.Value)
		sb.WriteString("\r\n")
	}

	return sb.String()
}

// HTTPHeader converts the set to a net/http header, preserving value order.
func (h *HeaderSet) HTTPHeader() http.Header {
	out := make(http.Header, h.Len())
	for _, e := range h.Entries() {
		out.Add(e.Name, e.Value)
	}

	return out
}

func isRange(name string) bool {
	return strings.EqualFold(name, headers.Range)
}
