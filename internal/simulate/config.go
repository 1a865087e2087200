package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	NumEvents  int           // Number of events to generate
	Members    int           // Number of distinct members
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Output file for events
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// Event is one generated consumption event.
type Event struct {
	EventID  string    `json:"event_id"`
	MemberID string    `json:"member_id"`
	Category string    `json:"category"`
	Quantity int       `json:"quantity"`
	At       time.Time `json:"at"`
}

// Entry is one leaderboard row as served over HTTP.
type Entry struct {
	Position  int            `json:"position"`
	MemberID  string         `json:"member_id"`
	Total     int            `json:"total"`
	Breakdown string         `json:"breakdown"`
	Usage     map[string]int `json:"usage"`
}

// Board is the leaderboard response.
type Board struct {
	Month     string  `json:"month"`
	Standings []Entry `json:"standings"`
}

// MemberStatus is the status response of one member.
type MemberStatus struct {
	MemberID   string `json:"member_id"`
	BaseName   string `json:"base_name"`
	Categories []struct {
		Category  string `json:"category"`
		Count     int    `json:"count"`
		HoursLeft int    `json:"hours_left"`
	} `json:"categories"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated    int
	EventsSubmitted    int
	EventsRecorded     int
	EventsFailed       int
	StatusesRetrieved  int
	StatusesExpired    int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
