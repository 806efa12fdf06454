package discovery

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseHTML extracts rows from HTML tables. The category is the table
// caption or, failing that, the closest preceding heading sibling.
func (p *Parser) parseHTML(src []byte) []Function {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return nil
	}

	var out []Function
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}

		headerRow := rows.First()
		var headers []string
		headerRow.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(cell.Text()))
		})
		layout, ok := newTableLayout(headers)
		if !ok {
			return
		}

		category := tableCategory(table)
		rows.Slice(1, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("td,th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			if fn, ok := p.row(layout, cells, category); ok {
				out = append(out, fn)
			}
		})
	})
	return out
}

func tableCategory(table *goquery.Selection) string {
	if c := strings.TrimSpace(table.Find("caption").First().Text()); c != "" {
		return c
	}
	const headings = "h1,h2,h3,h4,h5,h6"
	for s := table; s.Length() > 0 && !s.Is("body"); s = s.Parent() {
		if h := s.PrevAllFiltered(headings).First(); h.Length() > 0 {
			return cleanHeading(h.Text())
		}
	}
	return ""
}
