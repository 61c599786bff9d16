package extract

import "regexp"

// StandingColumns are cell offsets inside a standings row.
type StandingColumns struct {
	Rank        int
	Name        int
	Points      int
	Played      int
	Won         int
	Lost        int
	SetsFor     int
	SetsAgainst int
}

// MatchColumns are cell offsets inside a match row. A negative offset
// means the source does not publish that cell.
type MatchColumns struct {
	Date      int
	Time      int
	Home      int
	Away      int
	HomeScore int
	AwayScore int
	SetDetail int
}

// Layout describes how one source lays out its tables.
type Layout struct {
	// HeaderMarkers must all appear in the standings header row, compared
	// after team-name normalization.
	HeaderMarkers    []string
	MinStandingCells int
	Standing         StandingColumns

	// RoundPattern announces a new round; its first capture group is the
	// round number.
	RoundPattern  *regexp.Regexp
	MinMatchCells int
	Match         MatchColumns
	// PlayedSelector marks a played match when the row, or any element in
	// it, matches the selector.
	PlayedSelector string
	// Placeholders are substrings that disqualify a team cell.
	Placeholders []string
}

// DefaultRoundPattern matches "Journée 4", "JOURNEE 12", "Round 3".
const DefaultRoundPattern = `(?i)(?:journ[ée]e|round)\s*n?[°º]?\s*(\d+)`

// DefaultLayout is the column layout used by the federation result pages.
func DefaultLayout() Layout {
	return Layout{
		HeaderMarkers:    []string{"PTS", "JOUES", "GAGNES"},
		MinStandingCells: 8,
		Standing: StandingColumns{
			Rank: 0, Name: 1, Points: 2, Played: 3, Won: 4, Lost: 5, SetsFor: 6, SetsAgainst: 7,
		},
		RoundPattern:  regexp.MustCompile(DefaultRoundPattern),
		MinMatchCells: 4,
		Match: MatchColumns{
			Date: 0, Time: 1, Home: 2, Away: 3, HomeScore: 4, AwayScore: 5, SetDetail: 6,
		},
		PlayedSelector: ".played",
		Placeholders:   []string{"A DEFINIR", "TO BE CONFIRMED", "EXEMPT", "TBD"},
	}
}
