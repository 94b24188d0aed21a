package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is a fully read Pure API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Method and URL of the request that produced the response.
	Method string
	URL    string
}

// JSON decodes the body as a JSON object. Numbers are kept as json.Number.
func (r *Response) JSON() (map[string]any, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", r.URL, err)
	}
	return doc, nil
}

// Page decodes the body as a collection or change page.
func (r *Response) Page() (*Page, error) {
	page, err := DecodePage(r.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", r.URL, err)
	}
	page.Response = r
	return page, nil
}

// Page is one collection or change response body.
//
// For collection endpoints Count is the total number of records matching
// the query, independent of size and offset. For the change feed Count is
// the number of items in this page only.
type Page struct {
	Count           int
	Items           []map[string]any
	MoreChanges     bool
	ResumptionToken string

	// Response is the response the page was decoded from, when there is one.
	Response *Response

	hasCount       bool
	hasItems       bool
	hasMoreChanges bool
}

// HasCount reports whether the body carried a count field.
func (p *Page) HasCount() bool { return p.hasCount }

// HasItems reports whether the body carried an items field.
func (p *Page) HasItems() bool { return p.hasItems }

// HasMoreChanges reports whether the body carried a moreChanges field.
func (p *Page) HasMoreChanges() bool { return p.hasMoreChanges }

// wirePage distinguishes absent fields from zero values.
type wirePage struct {
	Count           *int              `json:"count"`
	Items           *[]map[string]any `json:"items"`
	MoreChanges     *bool             `json:"moreChanges"`
	ResumptionToken json.RawMessage   `json:"resumptionToken"`
}

// DecodePage decodes a page body.
func DecodePage(body []byte) (*Page, error) {
	var wire wirePage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}

	page := &Page{}
	if wire.Count != nil {
		page.Count = *wire.Count
		page.hasCount = true
	}
	if wire.Items != nil {
		page.Items = *wire.Items
		page.hasItems = true
	}
	if wire.MoreChanges != nil {
		page.MoreChanges = *wire.MoreChanges
		page.hasMoreChanges = true
	}
	page.ResumptionToken = decodeToken(wire.ResumptionToken)

	return page, nil
}

// decodeToken accepts the token as a JSON string or any other scalar.
func decodeToken(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
