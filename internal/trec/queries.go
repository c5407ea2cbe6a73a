package trec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/stylerank/internal/style"
)

// Query is one benchmark query read from a query file.
type Query struct {
	ID       string
	Title    string
	Text     string
	Vector   *style.Vector
	Keywords style.KeywordSet
}

type docRecord struct {
	RecordID string  `xml:"recordId"`
	Text     string  `xml:"text"`
	StyleVec *string `xml:"style_vec"`
	Keywords *string `xml:"style_keywords"`
}

// ParseQueries reads every <DOC> element of r, at any depth. Records without
// an id or text are skipped. A present <style_vec> must hold exactly four
// comma-separated numbers.
func ParseQueries(r io.Reader) ([]Query, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var queries []Query
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return queries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading query file: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "DOC" {
			continue
		}

		var rec docRecord
		if err := dec.DecodeElement(&rec, &start); err != nil {
			return nil, fmt.Errorf("decoding DOC element: %w", err)
		}

		q, ok, err := rec.query()
		if err != nil {
			return nil, err
		}
		if ok {
			queries = append(queries, q)
		}
	}
}

func (rec docRecord) query() (Query, bool, error) {
	id := strings.TrimSpace(rec.RecordID)
	text := strings.TrimSpace(rec.Text)
	if id == "" || text == "" {
		return Query{}, false, nil
	}

	q := Query{ID: id, Text: text, Title: firstLine(text)}

	if rec.StyleVec != nil {
		vec, err := ParseVector(*rec.StyleVec)
		if err != nil {
			return Query{}, false, fmt.Errorf("query %s: %w", id, err)
		}
		q.Vector = &vec
	}
	if rec.Keywords != nil {
		q.Keywords = style.NewKeywordSet(strings.Split(*rec.Keywords, ",")...)
	}
	return q, true, nil
}

// ParseVector parses a comma-separated style vector such as "0.5,12,0.1,60".
func ParseVector(s string) (style.Vector, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != style.Dimensions {
		return style.Vector{}, fmt.Errorf("style vector %q: want %d components, got %d", s, style.Dimensions, len(parts))
	}
	var v style.Vector
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return style.Vector{}, fmt.Errorf("style vector %q: component %d: %w", s, i, err)
		}
		v[i] = x
	}
	return v, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}
