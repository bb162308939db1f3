package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NamanBalaji/mtdl/internal/errors"
)

// RangePrefix is the unit prefix of a Range header value.
const RangePrefix = "bytes="

// ByteRange is an inclusive byte interval. To == -1 means open-ended.
type ByteRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// FullRange covers the whole resource.
var FullRange = ByteRange{From: 0, To: -1}

// NewByteRange validates and returns a range.
func NewByteRange(from, to int64) (ByteRange, error) {
	r := ByteRange{From: from, To: to}
	if !r.Valid() {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "invalid range %d-%d", from, to)
	}

	return r, nil
}

// Valid reports whether from >= 0 and to is either open or not before from.
func (r ByteRange) Valid() bool {
	return r.From >= 0 && (r.To < 0 || r.To >= r.From)
}

// IsOpenEnded reports whether the range runs to the end of the content.
func (r ByteRange) IsOpenEnded() bool {
	return r.To < 0
}

// IsFull reports whether the range covers the whole resource.
func (r ByteRange) IsFull() bool {
	return r.From == 0 && r.To < 0
}

// Length returns the number of bytes in the range, or -1 when open-ended.
func (r ByteRange) Length() int64 {
	if r.To < 0 {
		return -1
	}

	return r.To - r.From + 1
}

// HeaderValue renders the range as a single-range Range header value.
func (r ByteRange) HeaderValue() string {
	if r.To < 0 {
		return fmt.Sprintf("%s%d-", RangePrefix, r.From)
	}

	return fmt.Sprintf("%s%d-%d", RangePrefix, r.From, r.To)
}

func (r ByteRange) String() string {
	if r.To < 0 {
		return fmt.Sprintf("%d-", r.From)
	}

	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Resolve closes the range against a known content length. An open or
// overlong end is clamped to the last byte.
func (r ByteRange) Resolve(contentLength int64) (ByteRange, error) {
	if !r.Valid() {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "invalid range %s", r)
	}

	if contentLength < 0 {
		return r, nil
	}

	if r.From >= contentLength {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "range %s starts beyond content length %d", r, contentLength)
	}

	to := r.To
	if to < 0 || to >= contentLength {
		to = contentLength - 1
	}

	return ByteRange{From: r.From, To: to}, nil
}

// ParseRange parses "bytes=from-to", "from-to", "from-" or "-to". An empty
// start means 0 and an empty end means open-ended.
func ParseRange(value string) (ByteRange, error) {
	v := strings.TrimSpace(value)
	v = strings.TrimPrefix(v, RangePrefix)

	fromStr, toStr, ok := strings.Cut(v, "-")
	if !ok || strings.Contains(toStr, "-") {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "malformed range %q", value)
	}

	fromStr = strings.TrimSpace(fromStr)
	toStr = strings.TrimSpace(toStr)

	if fromStr == "" && toStr == "" {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "empty range %q", value)
	}

	r := ByteRange{From: 0, To: -1}

	if fromStr != "" {
		from, err := strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "malformed range start %q", fromStr)
		}

		r.From = from
	}

	if toStr != "" {
		to, err := strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "malformed range end %q", toStr)
		}

		r.To = to
	}

	if !r.Valid() {
		return ByteRange{}, errors.Newf(errors.CodeInvalidRange, "invalid range %q", value)
	}

	return r, nil
}

// ParseContentRangeTotal extracts the complete length from a Content-Range
// value like "bytes 0-0/1234". It returns -1 when the total is "*".
func ParseContentRangeTotal(value string) (int64, error) {
	_, total, ok := strings.Cut(value, "/")
	if !ok {
		return -1, ErrInvalidContentRange
	}

	total = strings.TrimSpace(total)
	if total == "*" {
		return -1, nil
	}

	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return -1, ErrInvalidContentRange
	}

	return size, nil
}
