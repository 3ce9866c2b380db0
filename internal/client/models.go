package client

import (
	"encoding/json"

	"github.com/squadsync/squadsync/pkg/errors"
	"github.com/squadsync/squadsync/pkg/types"
)

// Team is the user's squad: roster, score and league position
type Team struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Points    int      `json:"points"`
	Rank      int      `json:"rank"`
	Value     float64  `json:"value"`
	Players   []Player `json:"players"`
	RoundWins int      `json:"round_wins"`
}

// Dashboard aggregates the round summary shown on the home screen
type Dashboard struct {
	Round         int     `json:"round"`
	RoundPoints   int     `json:"round_points"`
	TotalPoints   int     `json:"total_points"`
	OverallRank   int     `json:"overall_rank"`
	LeagueAverage float64 `json:"league_average"`
	TradesLeft    int     `json:"trades_left"`
}

// Player is one rostered or available player
type Player struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Position  string  `json:"position"`
	Club      string  `json:"club"`
	Price     float64 `json:"price"`
	Points    int     `json:"points"`
	Average   float64 `json:"average"`
	Injured   bool    `json:"injured"`
	Suspended bool    `json:"suspended"`
}

// Trade is a pending or completed player swap
type Trade struct {
	ID        int    `json:"id"`
	Round     int    `json:"round"`
	PlayerOut Player `json:"player_out"`
	PlayerIn  Player `json:"player_in"`
	Completed bool   `json:"completed"`
}

// CaptainPick pairs a recommended captain with the model's confidence
type CaptainPick struct {
	Player     Player  `json:"player"`
	Projected  float64 `json:"projected"`
	Confidence float64 `json:"confidence"`
}

// Decode unmarshals a fetch result's payload into a typed model. Payloads
// come from the cache as often as from the wire, so decode failures are
// DATA errors either way.
func Decode[T any](res types.FetchResult) (T, error) {
	var out T
	if err := json.Unmarshal(res.Payload, &out); err != nil {
		return out, errors.New(errors.KindData, "cached or fetched payload does not decode").WithCause(err)
	}
	return out, nil
}
