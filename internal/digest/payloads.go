package digest

import "fmt"

// WeatherReport holds current conditions and a short forecast for one
// location.
type WeatherReport struct {
	Location   string        `json:"location"`
	TempF      float64       `json:"temp_f"`
	FeelsLikeF float64       `json:"feels_like_f"`
	Humidity   int           `json:"humidity"`
	WindMph    float64       `json:"wind_mph"`
	Conditions string        `json:"conditions"`
	Forecast   []ForecastDay `json:"forecast"`
}

// ForecastDay is one day of the forecast, sampled around midday.
type ForecastDay struct {
	Date       string  `json:"date"`
	TempF      float64 `json:"temp_f"`
	Conditions string  `json:"conditions"`
}

func (w *WeatherReport) Facts() []string {
	facts := []string{
		fmt.Sprintf("%s: %.0f°F (feels like %.0f°F), %s", w.Location, w.TempF, w.FeelsLikeF, w.Conditions),
		fmt.Sprintf("humidity %d%%, wind %.0f mph", w.Humidity, w.WindMph),
	}
	for _, d := range w.Forecast {
		facts = append(facts, fmt.Sprintf("%s: %.0f°F, %s", d.Date, d.TempF, d.Conditions))
	}
	return facts
}

// SportsReport holds standings and fixtures for the configured teams.
type SportsReport struct {
	Teams []TeamUpdate `json:"teams"`
}

// TeamUpdate is one team's recent result and next fixture.
type TeamUpdate struct {
	Name       string `json:"name"`
	League     string `json:"league"`
	Record     string `json:"record,omitempty"`
	LatestGame string `json:"latest_game,omitempty"`
	NextGame   string `json:"next_game,omitempty"`
}

func (s *SportsReport) Facts() []string {
	var facts []string
	for _, t := range s.Teams {
		line := fmt.Sprintf("%s (%s)", t.Name, t.League)
		if t.Record != "" {
			line += " record " + t.Record
		}
		facts = append(facts, line)
		if t.LatestGame != "" {
			facts = append(facts, "last: "+t.LatestGame)
		}
		if t.NextGame != "" {
			facts = append(facts, "next: "+t.NextGame)
		}
	}
	return facts
}

// TechReport holds the selected technology stories.
type TechReport struct {
	Stories  []Story `json:"stories"`
	TopStory string  `json:"top_story,omitempty"` // extracted text of the lead story
}

// Story is one feed item that matched the configured topics.
type Story struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Feed      string `json:"feed"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

func (t *TechReport) Facts() []string {
	var facts []string
	for _, s := range t.Stories {
		line := s.Title + " (" + s.Feed + ")"
		facts = append(facts, line)
		if s.Summary != "" {
			facts = append(facts, "  "+s.Summary)
		}
	}
	return facts
}

// MarketReport holds index quotes for the configured symbols.
type MarketReport struct {
	Indexes []IndexQuote `json:"indexes"`
}

// IndexQuote is one market index snapshot.
type IndexQuote struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

func (m *MarketReport) Facts() []string {
	var facts []string
	for _, ix := range m.Indexes {
		dir := "up"
		if ix.Change < 0 {
			dir = "down"
		}
		facts = append(facts, fmt.Sprintf("%s (%s) %.2f, %s %.2f (%.2f%%)",
			ix.Name, ix.Symbol, ix.Value, dir, abs(ix.Change), abs(ix.ChangePercent)))
	}
	return facts
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
