// Package meetings reads the working group meeting listing: which meetings
// exist, when they ran and where their documents are published.
package meetings

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"tdocflow/internal/logger"
	"tdocflow/internal/util"

	"github.com/PuerkitoBio/goquery"
)

// Meeting is one row of the meeting listing.
type Meeting struct {
	Key          string    `json:"key"`
	Group        string    `json:"group"`
	Number       string    `json:"number"`
	Title        string    `json:"title,omitempty"`
	Location     string    `json:"location"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	URL          string    `json:"url,omitempty"`
	DocumentsURL string    `json:"documents_url,omitempty"`
}

// AgendaURL is the location of the meeting's "TDocs by agenda" report.
func (m Meeting) AgendaURL(name string) string {
	if m.URL == "" {
		return ""
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		return ""
	}
	u.Path = path.Join(u.Path, name)
	return u.String()
}

// Collection is an ordered, read-only set of meetings.
type Collection struct {
	meetings []Meeting
	index    map[string]int
}

func NewCollection(ms []Meeting) Collection {
	c := Collection{meetings: make([]Meeting, 0, len(ms)), index: make(map[string]int, len(ms))}
	for _, m := range ms {
		k := foldKey(m.Key)
		if i, ok := c.index[k]; ok {
			c.meetings[i] = m
			continue
		}
		c.index[k] = len(c.meetings)
		c.meetings = append(c.meetings, m)
	}
	return c
}

func (c Collection) Len() int { return len(c.meetings) }

func (c Collection) All() []Meeting {
	return append([]Meeting(nil), c.meetings...)
}

// Find looks a meeting up by key, ignoring case and spaces ("sa2 #130" finds
// "SA2#130").
func (c Collection) Find(key string) (Meeting, bool) {
	i, ok := c.index[foldKey(key)]
	if !ok {
		return Meeting{}, false
	}
	return c.meetings[i], true
}

// InYear lists meetings starting in year.
func (c Collection) InYear(year int) Collection {
	return c.filter(func(m Meeting) bool { return !m.Start.IsZero() && m.Start.Year() == year })
}

func (c Collection) ForGroup(group string) Collection {
	return c.filter(func(m Meeting) bool { return strings.EqualFold(m.Group, group) })
}

func (c Collection) filter(keep func(Meeting) bool) Collection {
	out := make([]Meeting, 0)
	for _, m := range c.meetings {
		if keep(m) {
			out = append(out, m)
		}
	}
	return NewCollection(out)
}

func foldKey(k string) string {
	return strings.ToUpper(strings.Join(strings.Fields(k), ""))
}

var (
	headerFold = regexp.MustCompile(`[^a-z]+`)
	meetingKey = regexp.MustCompile(`^([A-Za-z]+[0-9]*)\s*#\s*(\S+)`)
	dateLayout = []string{"2006-01-02", "02 Jan 2006", "2 Jan 2006", "02 January 2006", "2006/01/02"}
)

type listingColumns struct {
	meeting, title, location, start, end int
}

// ParseListing reads the meeting listing page. Relative meeting links are
// resolved against baseURL. Rows without a recognisable meeting key or start
// date are skipped.
func ParseListing(raw []byte, baseURL string, log *logger.Logger) (Collection, error) {
	log = logger.OrNop(log)
	base, err := url.Parse(baseURL)
	if err != nil {
		return Collection{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Collection{}, fmt.Errorf("parse meeting listing: %w", err)
	}

	var out []Meeting
	found := false
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		cols, ok := mapListingHeader(rows.First())
		if !ok {
			return true
		}
		found = true
		rows.Slice(1, goquery.ToEnd).Each(func(n int, tr *goquery.Selection) {
			m, err := parseRow(tr, cols, base)
			if err != nil {
				log.Warn("skipping meeting listing row", "row", n+1, "error", err)
				return
			}
			out = append(out, m)
		})
		return false
	})
	if !found {
		return Collection{}, fmt.Errorf("meeting listing: %w", util.ErrNoTable)
	}
	return NewCollection(out), nil
}

func mapListingHeader(tr *goquery.Selection) (listingColumns, bool) {
	cols := listingColumns{meeting: -1, title: -1, location: -1, start: -1, end: -1}
	tr.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		switch headerFold.ReplaceAllString(strings.ToLower(cell.Text()), "") {
		case "meeting", "mtg", "meetingname":
			cols.meeting = i
		case "title", "name", "description":
			cols.title = i
		case "location", "town", "city", "place":
			cols.location = i
		case "start", "startdate", "from":
			cols.start = i
		case "end", "enddate", "to":
			cols.end = i
		}
	})
	return cols, cols.meeting >= 0 && cols.start >= 0
}

func parseRow(tr *goquery.Selection, cols listingColumns, base *url.URL) (Meeting, error) {
	cells := tr.Find("th, td")
	cell := func(i int) *goquery.Selection {
		if i < 0 || i >= cells.Length() {
			return nil
		}
		return cells.Eq(i)
	}
	text := func(i int) string {
		if c := cell(i); c != nil {
			return util.CleanCell(c.Text())
		}
		return ""
	}

	var m Meeting
	m.Key = text(cols.meeting)
	parts := meetingKey.FindStringSubmatch(m.Key)
	if parts == nil {
		return Meeting{}, fmt.Errorf("unrecognised meeting %q", m.Key)
	}
	m.Key = parts[1] + "#" + parts[2]
	m.Group = strings.ToUpper(parts[1])
	m.Number = parts[2]
	m.Title = text(cols.title)
	m.Location = text(cols.location)

	start, err := parseDate(text(cols.start))
	if err != nil {
		return Meeting{}, fmt.Errorf("meeting %s start: %w", m.Key, err)
	}
	m.Start = start
	if s := text(cols.end); s != "" {
		end, err := parseDate(s)
		if err != nil {
			return Meeting{}, fmt.Errorf("meeting %s end: %w", m.Key, err)
		}
		m.End = end
	}

	if c := cell(cols.meeting); c != nil {
		if href, ok := c.Find("a[href]").First().Attr("href"); ok {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				u := base.ResolveReference(ref)
				if !strings.HasSuffix(u.Path, "/") {
					u.Path += "/"
				}
				m.URL = u.String()
				m.DocumentsURL = u.ResolveReference(&url.URL{Path: "Docs/"}).String()
			}
		}
	}
	return m, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayout {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
