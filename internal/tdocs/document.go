// Package tdocs turns a "TDocs by agenda" meeting report into a typed,
// ID-indexed document table with resolved revision/merge lineage and vendor
// attribution.
package tdocs

import (
	"sort"
	"strings"
)

// ResultEmailApproval is the result value flagging documents still pending
// e-mail approval after the meeting.
const ResultEmailApproval = "For e-mail approval"

// Document is one TDoc row of a meeting report.
type Document struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Type       string `json:"type"`
	DocFor     string `json:"doc_for,omitempty"`
	Meeting    string `json:"meeting,omitempty"`
	AgendaItem string `json:"agenda_item"`
	AgendaTag  string `json:"agenda_tag"`
	Result     string `json:"result"`
	Comment    string `json:"comment_text"`

	RevisionOf string   `json:"revision_of"`
	RevisedTo  string   `json:"revised_to"`
	MergeOf    []string `json:"merge_of"`
	MergedTo   []string `json:"merged_to"`

	OriginalDocuments []string `json:"original_documents"`
	FinalDocuments    []string `json:"final_documents"`

	SpecNumber string `json:"spec_number,omitempty"`
	CRNumber   string `json:"cr_number,omitempty"`

	Vendors       []string `json:"vendors"`
	SourceSummary string   `json:"source_summary"`

	Extra map[string]string `json:"extra,omitempty"`
}

// HasVendor reports whether the classifier attributed the document to vendor.
func (d Document) HasVendor(vendor string) bool {
	for _, v := range d.Vendors {
		if v == vendor {
			return true
		}
	}
	return false
}

// Predecessors is revision_of followed by merge_of.
func (d Document) Predecessors() []string {
	return joinRefs(d.RevisionOf, d.MergeOf)
}

// Successors is revised_to followed by merged_to.
func (d Document) Successors() []string {
	return joinRefs(d.RevisedTo, d.MergedTo)
}

func joinRefs(single string, many []string) []string {
	out := make([]string, 0, len(many)+1)
	if single != "" {
		out = append(out, single)
	}
	return append(out, many...)
}

// Table is an ordered set of documents with a unique ID index.
type Table struct {
	docs          []Document
	index         map[string]int
	vendorColumns []string
}

// NewTable indexes docs. A repeated ID keeps its last occurrence, at the
// position of that last occurrence.
func NewTable(docs []Document) *Table {
	last := make(map[string]int, len(docs))
	for i, d := range docs {
		last[d.ID] = i
	}
	t := &Table{docs: make([]Document, 0, len(last)), index: make(map[string]int, len(last))}
	for i, d := range docs {
		if last[d.ID] != i {
			continue
		}
		t.index[d.ID] = len(t.docs)
		t.docs = append(t.docs, d)
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.docs)
}

// At returns a pointer into the table; mutations are visible to later lookups.
func (t *Table) At(i int) *Document {
	return &t.docs[i]
}

func (t *Table) Get(id string) (*Document, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.docs[i], true
}

// Documents returns a copy of the rows in table order.
func (t *Table) Documents() []Document {
	if t == nil {
		return nil
	}
	out := make([]Document, len(t.docs))
	copy(out, t.docs)
	return out
}

// VendorColumns lists the vendor names the classifier evaluated, in
// signature order.
func (t *Table) VendorColumns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.vendorColumns...)
}

func (t *Table) SetVendorColumns(cols []string) {
	t.vendorColumns = append([]string(nil), cols...)
}

// EmailApprovalCount counts documents whose result is "For e-mail approval".
func (t *Table) EmailApprovalCount() int {
	n := 0
	for i := 0; i < t.Len(); i++ {
		if strings.EqualFold(strings.TrimSpace(t.docs[i].Result), ResultEmailApproval) {
			n++
		}
	}
	return n
}

// ByAgendaItem groups document IDs by agenda item; keys are returned sorted
// by agenda tag.
func (t *Table) ByAgendaItem() (items []string, ids map[string][]string) {
	ids = map[string][]string{}
	tags := map[string]string{}
	for i := 0; i < t.Len(); i++ {
		d := t.docs[i]
		if _, ok := ids[d.AgendaItem]; !ok {
			items = append(items, d.AgendaItem)
			tags[d.AgendaItem] = d.AgendaTag
		}
		ids[d.AgendaItem] = append(ids[d.AgendaItem], d.ID)
	}
	sort.SliceStable(items, func(i, j int) bool { return tags[items[i]] < tags[items[j]] })
	return items, ids
}

// DocumentsFrom lists, in table order, the IDs attributed to vendor.
func (t *Table) DocumentsFrom(vendor string) []string {
	out := make([]string, 0)
	for i := 0; i < t.Len(); i++ {
		if t.docs[i].HasVendor(vendor) {
			out = append(out, t.docs[i].ID)
		}
	}
	return out
}
