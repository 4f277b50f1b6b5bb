package arca

import (
	"bytes"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	fullDate  = regexp.MustCompile(`(\d{4})[.\-/](\d{1,2})[.\-/](\d{1,2})`)
	shortDate = regexp.MustCompile(`^(\d{1,2})[.\-/](\d{1,2})$`)
	clockTime = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
)

// page is a parsed search result page.
type page struct {
	title  string
	listed bool
	rows   []*html.Node
	more   bool
}

func parsePage(body []byte) (*page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, zerr.Wrap(domain.ErrParse, err.Error())
	}

	pg := &page{}
	if t := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		pg.title = strings.TrimSpace(text(t))
	}

	for _, table := range findAll(doc, hasClassFn("list-table")) {
		pg.listed = true
		pg.rows = append(pg.rows, findAll(table, hasClassFn("vrow"))...)
	}

	for _, pagination := range findAll(doc, hasClassFn("pagination")) {
		for _, item := range findAll(pagination, hasClassFn("page-item")) {
			if hasClass(item, "active") || hasClass(item, "disabled") {
				continue
			}
			if find(item, func(n *html.Node) bool { return n.DataAtom == atom.A }) != nil {
				pg.more = true
			}
		}
	}
	return pg, nil
}

// measure counts rows authored by subject, newest first, stopping at the first
// row older than cutoff. A zero cutoff covers every row on the page.
func (pg *page) measure(subject string, cutoff, now time.Time) domain.Measurement {
	var (
		m       domain.Measurement
		stopped bool
	)
	for _, row := range pg.rows {
		if hasClass(row, "notice") || hasClass(row, "head") || hasClass(row, "vrow-head") {
			continue
		}

		date, dated := rowDate(row, now)
		if !cutoff.IsZero() && dated && date.Before(cutoff) {
			stopped = true
			break
		}
		if author(row) != subject {
			continue
		}

		m.Count++
		if dated {
			m.Timestamps = append(m.Timestamps, date)
		}
	}
	m.Truncated = !stopped && pg.more
	return m
}

func author(row *html.Node) string {
	for _, info := range findAll(row, hasClassFn("user-info")) {
		el := find(info, func(n *html.Node) bool {
			_, ok := attr(n, "data-filter")
			return ok
		})
		if el != nil {
			v, _ := attr(el, "data-filter")
			return v
		}
	}
	return ""
}

func rowDate(row *html.Node, now time.Time) (time.Time, bool) {
	el := find(row, func(n *html.Node) bool {
		_, ok := attr(n, "datetime")
		return n.DataAtom == atom.Time && ok
	})
	if el != nil {
		v, _ := attr(el, "datetime")
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}

	col := find(row, hasClassFn("col-time"))
	if col == nil {
		return time.Time{}, false
	}
	return parseColTime(strings.TrimSpace(text(col)), now)
}

// parseColTime reads the abbreviated dates shown in the time column: a full
// date, a month and day of the current year, or a same-day relative time.
func parseColTime(s string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	if m := fullDate.FindStringSubmatch(s); m != nil {
		return date(atoi(m[1]), atoi(m[2]), atoi(m[3]), loc), true
	}
	if m := shortDate.FindStringSubmatch(s); m != nil {
		return date(now.Year(), atoi(m[1]), atoi(m[2]), loc), true
	}
	if strings.Contains(s, "전") || clockTime.MatchString(s) {
		return now, true
	}
	return time.Time{}, false
}

func date(y, m, d int, loc *time.Location) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func attr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	return ok && slices.Contains(strings.Fields(v), class)
}

func hasClassFn(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasClass(n, class) }
}

// find returns the first descendant of n, in document order, matching match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for d := range n.Descendants() {
		if match(d) {
			return d
		}
	}
	return nil
}

// findAll returns descendants matching match, without descending into matches.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := range n.ChildNodes() {
		if match(c) {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, match)...)
	}
	return out
}

func text(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}
