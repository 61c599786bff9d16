// Package extract turns ragged HTML result tables into typed rows.
//
// Extractors return iter.Seq values that walk the parsed document each
// time they are ranged over, so a sequence can be consumed more than once
// and always yields the same rows for the same document.
package extract

import (
	"bytes"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/volleysync/internal/textnorm"
)

// Standing is one parsed standings row.
type Standing struct {
	Rank        int
	Name        string
	Points      int
	Played      int
	Won         int
	Lost        int
	SetsFor     int
	SetsAgainst int
}

// Fixture is one parsed match row. Score fields are nil unless the row
// carries the played marker.
type Fixture struct {
	Round     int
	Date      string
	Time      *string
	Home      string
	Away      string
	Played    bool
	HomeScore *int
	AwayScore *int
	SetDetail []string
}

// Parse builds a goquery document from raw, already-decoded HTML.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Standings yields the rows of the first table whose header carries every
// layout header marker.
func Standings(doc *goquery.Document, layout Layout) iter.Seq[Standing] {
	return func(yield func(Standing) bool) {
		table, header := findStandingsTable(doc, layout.HeaderMarkers)
		if table == nil {
			return
		}

		col := layout.Standing
		index := 0
		table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
			if i <= header {
				return true
			}
			cells := rowCells(row)
			if len(cells) < layout.MinStandingCells {
				return true
			}
			index++

			s := Standing{
				Rank:        atoiOr(cell(cells, col.Rank), index),
				Name:        textnorm.TitleCase(collapse(cell(cells, col.Name))),
				Points:      atoiOr(cell(cells, col.Points), 0),
				Played:      atoiOr(cell(cells, col.Played), 0),
				Won:         atoiOr(cell(cells, col.Won), 0),
				Lost:        atoiOr(cell(cells, col.Lost), 0),
				SetsFor:     atoiOr(cell(cells, col.SetsFor), 0),
				SetsAgainst: atoiOr(cell(cells, col.SetsAgainst), 0),
			}
			if len(s.Name) <= 2 {
				return true
			}
			return yield(s)
		})
	}
}

// Matches yields fixture rows. Rows seen before the first round
// announcement are dropped.
func Matches(doc *goquery.Document, layout Layout) iter.Seq[Fixture] {
	return func(yield func(Fixture) bool) {
		round := 0
		col := layout.Match

		doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			if n, ok := roundOf(row, layout.RoundPattern); ok {
				round = n
				return true
			}
			if round == 0 || row.Children().Filter("td").Length() == 0 {
				return true
			}

			cells := rowCells(row)
			if len(cells) < layout.MinMatchCells {
				return true
			}
			home := collapse(cell(cells, col.Home))
			away := collapse(cell(cells, col.Away))
			if !isTeamCell(home, layout.Placeholders) || !isTeamCell(away, layout.Placeholders) {
				return true
			}

			f := Fixture{
				Round:  round,
				Date:   NormalizeDate(cell(cells, col.Date)),
				Home:   textnorm.TitleCase(home),
				Away:   textnorm.TitleCase(away),
				Played: isPlayed(row, layout.PlayedSelector),
			}
			if t := strings.TrimSpace(cell(cells, col.Time)); t != "" {
				f.Time = &t
			}
			if f.Played {
				f.HomeScore = atoiPtr(cell(cells, col.HomeScore))
				f.AwayScore = atoiPtr(cell(cells, col.AwayScore))
				f.SetDetail = splitSets(cell(cells, col.SetDetail))
			}
			return yield(f)
		})
	}
}

// CollectStandings drains a standings sequence.
func CollectStandings(doc *goquery.Document, layout Layout) []Standing {
	return slices.Collect(Standings(doc, layout))
}

// CollectMatches drains a match sequence.
func CollectMatches(doc *goquery.Document, layout Layout) []Fixture {
	return slices.Collect(Matches(doc, layout))
}

var (
	shortYear = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
	longYear  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// NormalizeDate rewrites DD/MM/YY and DD/MM/YYYY into YYYY-MM-DD.
// Two-digit years are assumed to be 20YY. Other input is returned trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if m := shortYear.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("20%s-%s-%s", m[3], pad(m[2]), pad(m[1]))
	}
	if m := longYear.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], pad(m[2]), pad(m[1]))
	}
	return s
}

func pad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func findStandingsTable(doc *goquery.Document, markers []string) (*goquery.Selection, int) {
	var found *goquery.Selection
	header := -1

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
			if hasMarkers(row, markers) {
				found, header = table, i
				return false
			}
			return true
		})
		return found == nil
	})
	return found, header
}

func hasMarkers(row *goquery.Selection, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	text := textnorm.NormalizeTeamName(strings.Join(rowCells(row), " "))
	for _, m := range markers {
		if !strings.Contains(text, textnorm.NormalizeTeamName(m)) {
			return false
		}
	}
	return true
}

func roundOf(row *goquery.Selection, pattern *regexp.Regexp) (int, bool) {
	if pattern == nil {
		return 0, false
	}
	m := pattern.FindStringSubmatch(collapse(row.Text()))
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isTeamCell(name string, placeholders []string) bool {
	if len([]rune(name)) < 3 {
		return false
	}
	norm := textnorm.NormalizeTeamName(name)
	for _, p := range placeholders {
		if p != "" && strings.Contains(norm, textnorm.NormalizeTeamName(p)) {
			return false
		}
	}
	return true
}

func isPlayed(row *goquery.Selection, selector string) bool {
	if selector == "" {
		return false
	}
	return row.Is(selector) || row.Find(selector).Length() > 0
}

func rowCells(row *goquery.Selection) []string {
	var cells []string
	row.Children().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "td" || goquery.NodeName(c) == "th" {
			cells = append(cells, strings.TrimSpace(c.Text()))
		}
	})
	return cells
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func splitSets(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\n' || r == '\t'
	})
	if len(parts) == 0 {
		return nil
	}
	return parts
}
