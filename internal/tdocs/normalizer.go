package tdocs

import (
	"html"
	"regexp"
	"strings"

	"tdocflow/internal/logger"
	"tdocflow/internal/util"

	"github.com/PuerkitoBio/goquery"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatLegacy  Format = "legacy-html"
	FormatExcel   Format = "excel-export"
)

// Sheet is the flat row/cell view of the report's document table.
type Sheet struct {
	Format Format     `json:"format"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

type substitution struct {
	name string
	re   *regexp.Regexp
	repl string
}

var (
	metaTag = regexp.MustCompile(`(?is)<meta\b[^>]*>`)

	// Applied in order to Excel exports before splitting on table markup.
	excelSubstitutions = []substitution{
		{"style-blocks", regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`), ""},
		attrSubstitution("style"),
		attrSubstitution("class"),
		attrSubstitution("width"),
		attrSubstitution("valign"),
		attrSubstitution("lang"),
		attrSubstitution("border"),
		attrSubstitution("cellpadding"),
		{"paragraph-tags", regexp.MustCompile(`(?i)</?p(?:\s[^>]*)?>`), " "},
		{"bold-tags", regexp.MustCompile(`(?i)</?b(?:\s[^>]*)?>`), ""},
		{"span-tags", regexp.MustCompile(`(?i)</?span(?:\s[^>]*)?>`), ""},
		{"comments", regexp.MustCompile(`(?s)<!--.*?-->`), ""},
	}

	tableOpen  = regexp.MustCompile(`(?i)<table(?:\s[^>]*)?>`)
	tableClose = regexp.MustCompile(`(?i)</table\s*>`)
	rowOpen    = regexp.MustCompile(`(?i)<tr(?:\s[^>]*)?>`)
	rowClose   = regexp.MustCompile(`(?i)</tr\s*>`)
	cellOpen   = regexp.MustCompile(`(?i)<t[dh](?:\s[^>]*)?>`)
	lineBreak  = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag     = regexp.MustCompile(`(?s)<[^>]*>`)
)

func attrSubstitution(name string) substitution {
	return substitution{
		name: name + "-attributes",
		re:   regexp.MustCompile(`(?i)\s` + name + `\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`),
		repl: "",
	}
}

// DetectFormat recognises Excel exports by their generator meta tag.
func DetectFormat(text string) Format {
	for _, tag := range metaTag.FindAllString(text, -1) {
		low := strings.ToLower(tag)
		if strings.Contains(low, "generator") && strings.Contains(low, "microsoft excel") {
			return FormatExcel
		}
	}
	return FormatLegacy
}

// Normalize extracts the report's document table. Separator rows (second
// cell empty or "-") are dropped. A report without table structure yields an
// empty sheet.
func Normalize(text string, log *logger.Logger) Sheet {
	log = logger.OrNop(log)
	var sheet Sheet
	switch DetectFormat(text) {
	case FormatExcel:
		sheet = normalizeExcel(text, log)
	default:
		sheet = normalizeLegacy(text, log)
	}
	if len(sheet.Header) == 0 {
		log.Warn("no table found in agenda report", "format", sheet.Format, "error", util.ErrNoTable)
		return Sheet{Format: sheet.Format}
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		if isSeparator(r) {
			continue
		}
		rows = append(rows, r)
	}
	sheet.Rows = rows
	log.Debug("normalized agenda report", "format", sheet.Format, "columns", len(sheet.Header), "rows", len(rows))
	return sheet
}

func isSeparator(row []string) bool {
	if len(row) < 2 {
		return true
	}
	second := strings.TrimSpace(row[1])
	return second == "" || second == "-"
}

func normalizeLegacy(text string, log *logger.Logger) Sheet {
	sheet := Sheet{Format: FormatLegacy}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		log.Warn("parse agenda html", "error", err)
		return sheet
	}
	doc.Find("br").ReplaceWithHtml(" ")
	// Block boundaries inside a cell separate words; Text() would glue them.
	blocks := doc.Find("p, div, li, table, tr, td, th")
	blocks.BeforeHtml(" ")
	blocks.AfterHtml(" ")

	tables := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("table").Length() == 0
	})
	if tables.Length() == 0 {
		return sheet
	}
	table := tables.Last()
	rows := table.ChildrenFiltered("thead, tbody, tfoot").ChildrenFiltered("tr")
	if rows.Length() == 0 {
		return sheet
	}

	header := table.ChildrenFiltered("thead").First().ChildrenFiltered("tr").First()
	if header.Length() == 0 {
		header = rows.First()
	}
	headerNode := header.Get(0)
	sheet.Header = rowCells(header)

	rows.Each(func(_ int, tr *goquery.Selection) {
		if tr.Get(0) == headerNode {
			return
		}
		sheet.Rows = append(sheet.Rows, rowCells(tr))
	})
	stripLeadingEmptyColumns(&sheet)
	return sheet
}

func rowCells(tr *goquery.Selection) []string {
	return tr.ChildrenFiltered("th, td").Map(func(_ int, td *goquery.Selection) string {
		return util.CleanCell(td.Text())
	})
}

// Word exports sometimes prepend an empty column; it shows up as a run of
// empty header cells.
func stripLeadingEmptyColumns(sheet *Sheet) {
	lead := 0
	for lead < len(sheet.Header) && sheet.Header[lead] == "" {
		lead++
	}
	if lead == 0 || lead == len(sheet.Header) {
		return
	}
	sheet.Header = sheet.Header[lead:]
	for i, r := range sheet.Rows {
		if len(r) > lead {
			sheet.Rows[i] = r[lead:]
		}
	}
}

func normalizeExcel(text string, log *logger.Logger) Sheet {
	sheet := Sheet{Format: FormatExcel}
	log.Debug("stripping excel export markup", "step", "input", "bytes", len(text))
	for _, sub := range excelSubstitutions {
		text = sub.re.ReplaceAllString(text, sub.repl)
		log.Debug("stripping excel export markup", "step", sub.name, "bytes", len(text))
	}

	body := lastTableBody(text)
	if body == "" {
		return sheet
	}
	for i, chunk := range rowOpen.Split(body, -1) {
		if i == 0 {
			continue
		}
		if loc := rowClose.FindStringIndex(chunk); loc != nil {
			chunk = chunk[:loc[0]]
		}
		parts := cellOpen.Split(chunk, -1)
		if len(parts) < 2 {
			continue
		}
		cells := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			cells = append(cells, cellText(p))
		}
		if sheet.Header == nil {
			sheet.Header = cells
			continue
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return sheet
}

// lastTableBody returns the markup of the last table that contains rows.
func lastTableBody(text string) string {
	pieces := tableOpen.Split(text, -1)
	for i := len(pieces) - 1; i >= 1; i-- {
		body := pieces[i]
		if loc := tableClose.FindStringIndex(body); loc != nil {
			body = body[:loc[0]]
		}
		if rowOpen.MatchString(body) {
			return body
		}
	}
	return ""
}

func cellText(s string) string {
	s = lineBreak.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, "")
	return util.CleanCell(html.UnescapeString(s))
}
