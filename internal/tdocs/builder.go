package tdocs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tdocflow/internal/logger"
	"tdocflow/internal/util"
)

type column int

const (
	colExtra column = iota
	colID
	colTitle
	colSource
	colType
	colDocFor
	colMeeting
	colAgendaItem
	colResult
	colComment
)

// headerAliases maps a folded header text to its column. "Subject" is the
// legacy name of the title column.
var headerAliases = map[string]column{
	"td":          colID,
	"tdoc":        colID,
	"tdocnumber":  colID,
	"tdocnum":     colID,
	"title":       colTitle,
	"subject":     colTitle,
	"source":      colSource,
	"type":        colType,
	"doctype":     colType,
	"docfor":      colDocFor,
	"for":         colDocFor,
	"meeting":     colMeeting,
	"ai":          colAgendaItem,
	"agendaitem":  colAgendaItem,
	"agenda":      colAgendaItem,
	"result":      colResult,
	"decision":    colResult,
	"comments":    colComment,
	"comment":     colComment,
	"commentsnew": colComment,
}

var (
	headerFold = regexp.MustCompile(`[^a-z0-9]+`)
	crTitleRe  = regexp.MustCompile(`\b(\d{2}\.\d{3})\s+CR\s?#?(\d+)\b`)
	agendaNum  = regexp.MustCompile(`\d+`)
	wgPrefixRe = regexp.MustCompile(`^([SCR])(\d)$`)
)

// BuildOptions control how rows become documents.
type BuildOptions struct {
	IgnoreCrossMeetingRevisions bool
	// GroupName is the working group that authored the report, e.g. "SA WG2".
	// When empty it is derived from the document ID prefix.
	GroupName string
}

// Build assembles normalized rows into a document table. Rows that cannot be
// fully extracted are kept with what could be read; rows without an ID are
// dropped. The returned table is never nil.
func Build(sheet Sheet, opts BuildOptions, log *logger.Logger) *Table {
	log = logger.OrNop(log)
	cols := mapHeader(sheet.Header)
	idCol := -1
	for i, c := range cols {
		if c == colID {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		if len(sheet.Header) > 0 {
			log.Warn("cannot build document table", "header", sheet.Header, "error", util.ErrNoIDColumn)
		}
		return NewTable(nil)
	}

	docs := make([]Document, 0, len(sheet.Rows))
	for n, row := range sheet.Rows {
		d, err := buildRow(row, sheet.Header, cols, opts)
		if err != nil {
			log.Warn("partial agenda row", "row", n, "tdoc", d.ID, "error", err)
		}
		if d.ID == "" {
			continue
		}
		docs = append(docs, d)
	}
	t := NewTable(docs)
	if dup := len(docs) - t.Len(); dup > 0 {
		log.Debug("deduplicated agenda rows", "duplicates", dup)
	}

	fixLSOutSources(t, opts.GroupName, log)
	extractCRNumbers(t)
	return t
}

func mapHeader(header []string) []column {
	cols := make([]column, len(header))
	seen := map[column]bool{}
	for i, h := range header {
		c, ok := headerAliases[headerFold.ReplaceAllString(strings.ToLower(h), "")]
		if !ok || seen[c] {
			cols[i] = colExtra
			continue
		}
		seen[c] = true
		cols[i] = c
	}
	return cols
}

// rowBuilder fills d from one agenda row. Tests replace it.
var rowBuilder = buildDocument

// buildRow converts one row. A panic while converting is reported as the
// row's error; the fields filled before it are kept.
func buildRow(row, header []string, cols []column, opts BuildOptions) (d Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agenda row panicked: %v", p)
			d.MergeOf = nonNil(d.MergeOf)
			d.MergedTo = nonNil(d.MergedTo)
			d.OriginalDocuments = []string{}
			d.FinalDocuments = []string{}
			d.Vendors = []string{}
		}
	}()
	err = rowBuilder(&d, row, header, cols, opts)
	return d, err
}

func buildDocument(d *Document, row, header []string, cols []column, opts BuildOptions) error {
	var err error
	for i, c := range cols {
		if i >= len(row) {
			err = fmt.Errorf("row has %d cells, header has %d", len(row), len(cols))
			break
		}
		v := row[i]
		switch c {
		case colID:
			d.ID = strings.TrimSpace(v)
		case colTitle:
			d.Title = v
		case colSource:
			d.Source = v
		case colType:
			d.Type = v
		case colDocFor:
			d.DocFor = v
		case colMeeting:
			d.Meeting = v
		case colAgendaItem:
			d.AgendaItem = v
		case colResult:
			d.Result = v
		case colComment:
			d.Comment = v
		default:
			if header[i] == "" || v == "" {
				continue
			}
			if d.Extra == nil {
				d.Extra = map[string]string{}
			}
			d.Extra[header[i]] = v
		}
	}
	if d.ID != "" && !idOnlyRe.MatchString(d.ID) && err == nil {
		err = fmt.Errorf("unexpected document id %q", d.ID)
	}
	d.AgendaTag = AgendaTag(d.AgendaItem)

	a := ParseComment(d.Comment, opts.IgnoreCrossMeetingRevisions)
	d.RevisionOf = a.RevisionOf
	d.RevisedTo = a.RevisedTo
	d.MergeOf = nonNil(a.MergeOf)
	d.MergedTo = nonNil(a.MergedTo)
	d.OriginalDocuments = []string{}
	d.FinalDocuments = []string{}
	d.Vendors = []string{}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// AgendaTag is a sortable key for an agenda item: "6.2.1" becomes
// "006.002.001". Items without digits sort last.
func AgendaTag(item string) string {
	nums := agendaNum.FindAllString(item, -1)
	if len(nums) == 0 {
		return "~" + strings.ToLower(strings.TrimSpace(item))
	}
	parts := make([]string, 0, len(nums))
	for _, n := range nums {
		v, err := strconv.Atoi(n)
		if err != nil {
			parts = append(parts, n)
			continue
		}
		parts = append(parts, fmt.Sprintf("%03d", v))
	}
	return strings.Join(parts, ".")
}

// WorkingGroupNames lists the spellings a working group uses for itself in
// the source column, derived from a document ID such as "S2-1812345".
func WorkingGroupNames(id string) []string {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return nil
	}
	if m := wgPrefixRe.FindStringSubmatch(prefix); m != nil {
		tsg := map[string]string{"S": "SA", "C": "CT", "R": "RAN"}[m[1]]
		return []string{tsg + " WG" + m[2], tsg + m[2], tsg + " " + m[2], tsg + "WG" + m[2]}
	}
	switch prefix {
	case "SP":
		return []string{"TSG SA", "SA"}
	case "CP":
		return []string{"TSG CT", "CT"}
	case "RP":
		return []string{"TSG RAN", "RAN"}
	}
	return nil
}

func isLSOut(docType string) bool {
	t := strings.ToUpper(strings.TrimSpace(docType))
	t = strings.NewReplacer("-", " ", "_", " ").Replace(t)
	return strings.Join(strings.Fields(t), " ") == "LS OUT"
}

// fixLSOutSources repairs outgoing liaisons whose source was entered as the
// working group itself: the source of the revised liaison is used instead.
func fixLSOutSources(t *Table, groupName string, log *logger.Logger) {
	for i := 0; i < t.Len(); i++ {
		d := t.At(i)
		if !isLSOut(d.Type) || d.RevisionOf == "" {
			continue
		}
		names := WorkingGroupNames(d.ID)
		if groupName != "" {
			names = append([]string{groupName}, names...)
		}
		if !equalsAny(d.Source, names) {
			continue
		}
		prev, ok := t.Get(d.RevisionOf)
		if !ok || prev.Source == "" {
			continue
		}
		log.Debug("replacing working group source of outgoing liaison", "tdoc", d.ID, "from", d.Source, "to", prev.Source)
		d.Source = prev.Source
	}
}

func equalsAny(s string, names []string) bool {
	s = strings.TrimSpace(s)
	for _, n := range names {
		if strings.EqualFold(s, n) {
			return true
		}
	}
	return false
}

func extractCRNumbers(t *Table) {
	for i := 0; i < t.Len(); i++ {
		d := t.At(i)
		m := crTitleRe.FindStringSubmatch(d.Title)
		if m == nil {
			continue
		}
		d.SpecNumber = m[1]
		d.CRNumber = m[2]
	}
}
