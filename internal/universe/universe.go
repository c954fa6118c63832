package universe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one instrument in the universe. Key is what fetchers are
// called with: the coin id for CoinGecko lists, the ticker otherwise.
type Entry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Key returns the identifier passed to the bar fetcher.
func (e Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Symbol
}

// Source describes where the universe comes from and how it is filtered.
type Source struct {
	// Location is a file path or an http(s) URL.
	Location string
	// Format is "csv" or "json"; empty infers it from the extension.
	Format string
	// Column is the CSV column holding tickers. Defaults to "Symbol".
	Column string
	// Symbols is an inline list used when Location is empty.
	Symbols []string
	// ExcludeSymbolChars drops tickers containing any of these runes,
	// e.g. "^" for indices.
	ExcludeSymbolChars string
	// ExcludeNames drops entries whose name contains any substring.
	ExcludeNames []string
	// Limit keeps only the first Limit entries after filtering; zero keeps all.
	Limit int
}

// Load decodes and filters the universe. Order follows the source and is
// the tie-break order of a screening pass.
func Load(ctx context.Context, src Source, client *http.Client) ([]Entry, error) {
	var entries []Entry
	if src.Location == "" {
		for _, s := range src.Symbols {
			entries = append(entries, Entry{Symbol: strings.TrimSpace(s)})
		}
	} else {
		rc, err := open(ctx, src.Location, client)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		switch format(src) {
		case "csv":
			entries, err = decodeCSV(rc, src.Column)
		case "json":
			entries, err = decodeJSON(rc)
		default:
			err = fmt.Errorf("unsupported universe format %q", src.Format)
		}
		if err != nil {
			return nil, fmt.Errorf("decode universe %s: %w", src.Location, err)
		}
	}
	return filter(entries, src), nil
}

// Keys returns the fetcher keys of entries, in order.
func Keys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key()
	}
	return keys
}

func format(src Source) string {
	if src.Format != "" {
		return strings.ToLower(src.Format)
	}
	loc := src.Location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(loc)), ".")
}

func open(ctx context.Context, location string, client *http.Client) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open universe: %w", err)
		}
		return f, nil
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("fetch universe: status %d, body: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

func decodeCSV(r io.Reader, column string) ([]Entry, error) {
	if column == "" {
		column = "Symbol"
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	symCol, nameCol := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(h, column):
			symCol = i
		case strings.EqualFold(h, "Name") || strings.EqualFold(h, "Company Name"):
			nameCol = i
		}
	}
	if symCol < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}

	var entries []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if symCol >= len(rec) {
			continue
		}
		e := Entry{Symbol: strings.TrimSpace(rec[symCol])}
		if nameCol >= 0 && nameCol < len(rec) {
			e.Name = strings.TrimSpace(rec[nameCol])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeJSON(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func filter(entries []Entry, src Source) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		key := e.Key()
		if key == "" || seen[key] {
			continue
		}
		if src.ExcludeSymbolChars != "" && strings.ContainsAny(e.Symbol, src.ExcludeSymbolChars) {
			continue
		}
		if excludedName(e.Name, src.ExcludeNames) {
			continue
		}
		seen[key] = true
		out = append(out, e)
		if src.Limit > 0 && len(out) == src.Limit {
			break
		}
	}
	return out
}

func excludedName(name string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}
