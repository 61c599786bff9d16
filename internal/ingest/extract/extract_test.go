package extract

import (
	"regexp"
	"strings"
	"testing"
)

const standingsPage = `
<html><body>
<table class="nav"><tr><td>Accueil</td><td>Pts</td></tr></table>
<table>
  <tr><th>Rang</th><th>Equipe</th><th>Pts</th><th>Joues</th><th>Gagnes</th><th>Perdus</th><th>Pour</th><th>Contre</th></tr>
  <tr><td>1</td><td>TEAM A</td><td>9</td><td>3</td><td>3</td><td>0</td><td>9</td><td>1</td></tr>
  <tr><td>x</td><td>SÈTE  VOLLEY-BALL</td><td>6</td><td>3</td><td>2</td><td>1</td><td>n/a</td><td>4</td></tr>
  <tr><td>3</td><td>AB</td><td>0</td><td>3</td><td>0</td><td>3</td><td>0</td><td>9</td></tr>
  <tr><td colspan="8">Mise à jour le 05/10/24</td></tr>
</table>
</body></html>`

func TestStandingsScenario(t *testing.T) {
	doc, err := Parse([]byte(standingsPage))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	rows := CollectStandings(doc, DefaultLayout())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(rows), rows)
	}

	want := Standing{Rank: 1, Name: "Team A", Points: 9, Played: 3, Won: 3, Lost: 0, SetsFor: 9, SetsAgainst: 1}
	if rows[0] != want {
		t.Errorf("row 0 = %+v, want %+v", rows[0], want)
	}

	// malformed rank falls back to position, malformed int to 0
	if rows[1].Rank != 2 || rows[1].SetsFor != 0 || rows[1].SetsAgainst != 4 {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if rows[1].Name != "Sète Volley-ball" {
		t.Errorf("row 1 name = %q", rows[1].Name)
	}
}

func TestStandingsRestartable(t *testing.T) {
	doc, _ := Parse([]byte(standingsPage))
	seq := Standings(doc, DefaultLayout())

	var first, second []Standing
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	if len(first) == 0 || len(first) != len(second) || first[0] != second[0] {
		t.Errorf("re-iteration differs: %v vs %v", first, second)
	}

	// early break must not panic
	for range seq {
		break
	}
}

func TestStandingsNoMatchingTable(t *testing.T) {
	doc, _ := Parse([]byte(`<table><tr><th>Nom</th></tr><tr><td>x</td></tr></table>`))
	if rows := CollectStandings(doc, DefaultLayout()); len(rows) != 0 {
		t.Errorf("got %d rows from a page without standings", len(rows))
	}
}

const matchesPage = `
<html><body>
<table>
  <tr><td>05/10/24</td><td>20:00</td><td>ORPHAN HOME</td><td>ORPHAN AWAY</td></tr>
  <tr><td colspan="7">Journée 4</td></tr>
  <tr><th>Date</th><th>Heure</th><th>Domicile</th><th>Exterieur</th><th colspan="3">Score</th></tr>
  <tr><td>05/10/24</td><td>20:00</td><td>TEAM A</td><td>TEAM B</td><td></td><td></td><td></td></tr>
  <tr class="played"><td>06/10/24</td><td>15:00</td><td>TEAM C</td><td>TEAM D</td><td>3</td><td>1</td><td>25-20 23-25, 25-18 25-10</td></tr>
  <tr><td>06/10/24</td><td></td><td>TEAM E</td><td>A définir</td><td></td><td></td><td></td></tr>
  <tr><td>06/10/24</td><td></td><td>XY</td><td>TEAM F</td></tr>
  <tr><td>06/10/24</td><td>TEAM G</td><td>TEAM H</td></tr>
  <tr><td colspan="7">JOURNEE 5</td></tr>
  <tr><td>12/10/2024</td><td>18:30</td><td>TEAM B</td><td>TEAM A</td><td>2</td><td>3</td><td>x</td></tr>
</table>
</body></html>`

func TestMatches(t *testing.T) {
	doc, err := Parse([]byte(matchesPage))
	if err != nil {
		t.Fatal(err)
	}

	rows := CollectMatches(doc, DefaultLayout())
	if len(rows) != 3 {
		t.Fatalf("got %d fixtures, want 3: %+v", len(rows), rows)
	}

	scheduled := rows[0]
	if scheduled.Round != 4 || scheduled.Home != "Team A" || scheduled.Away != "Team B" || scheduled.Played {
		t.Errorf("scheduled = %+v", scheduled)
	}
	if scheduled.HomeScore != nil || scheduled.AwayScore != nil || scheduled.SetDetail != nil {
		t.Errorf("scheduled fixture has score fields: %+v", scheduled)
	}
	if scheduled.Date != "2024-10-05" || scheduled.Time == nil || *scheduled.Time != "20:00" {
		t.Errorf("scheduled date/time = %q %v", scheduled.Date, scheduled.Time)
	}

	played := rows[1]
	if !played.Played || played.HomeScore == nil || *played.HomeScore != 3 || *played.AwayScore != 1 {
		t.Errorf("played = %+v", played)
	}
	if strings.Join(played.SetDetail, "|") != "25-20|23-25|25-18|25-10" {
		t.Errorf("set detail = %v", played.SetDetail)
	}

	// the marker decides status, not the presence of numbers
	next := rows[2]
	if next.Round != 5 || next.Played || next.HomeScore != nil {
		t.Errorf("unmarked row with numbers = %+v", next)
	}
	if next.Date != "2024-10-12" {
		t.Errorf("long year date = %q", next.Date)
	}
}

func TestMatchesCustomRoundPattern(t *testing.T) {
	layout := DefaultLayout()
	layout.RoundPattern = regexp.MustCompile(`^J(\d+)$`)

	doc, _ := Parse([]byte(`<table>
		<tr><td>J2</td></tr>
		<tr><td>01/02/25</td><td></td><td>TEAM A</td><td>TEAM B</td></tr>
	</table>`))

	rows := CollectMatches(doc, layout)
	if len(rows) != 1 || rows[0].Round != 2 || rows[0].Time != nil {
		t.Errorf("rows = %+v", rows)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"05/10/24":     "2024-10-05",
		"5/1/25":       "2025-01-05",
		"05/10/2024":   "2024-10-05",
		" 2024-10-05 ": "2024-10-05",
		"samedi":       "samedi",
	}
	for in, want := range tests {
		if got := NormalizeDate(in); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}
