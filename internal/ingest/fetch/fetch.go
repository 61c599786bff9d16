// Package fetch retrieves source pages, either over plain HTTP or through a
// headless browser for pages that render their tables client-side.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Request describes one page to retrieve.
type Request struct {
	URL string
	// Encoding is the page's character set ("utf-8", "windows-1252",
	// "iso-8859-1", ...). Empty means UTF-8.
	Encoding string
}

// Page is a fetched page whose body has been decoded to UTF-8.
type Page struct {
	URL    string
	Status int
	Body   []byte
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// FetchError reports a transport failure or a non-2xx status.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s: unexpected status code: %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Decode converts body from the named character set to UTF-8.
func Decode(body []byte, encoding string) ([]byte, error) {
	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", encoding, err)
	}
	return out, nil
}

// ValidEncoding reports whether Decode understands name.
func ValidEncoding(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return true
	}
	_, err := htmlindex.Get(name)
	return err == nil
}
