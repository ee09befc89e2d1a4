package models

import "time"

// Concert is a live listening session hosted by one user. The realtime layer
// treats it as read-only configuration fetched once at join time.
type Concert struct {
	ID              string         `json:"id"`              // Unique identifier for the concert (UUID)
	Title           string         `json:"title"`           // Title shown in the room header
	Description     string         `json:"description"`     // Free text description, may be empty
	HostID          string         `json:"hostId"`          // User ID of the host
	HostDisplayName string         `json:"hostDisplayName"` // Display name of the host at creation time
	Setlist         []SetlistEntry `json:"setlist"`         // Ordered track references, may be empty
	CreatedAt       time.Time      `json:"createdAt"`
}

// SetlistEntry references one track in a concert's setlist.
type SetlistEntry struct {
	Position int    `json:"position"`         // 1-based order within the setlist
	TrackID  string `json:"trackId"`          // Reference into the (external) track catalogue
	Title    string `json:"title"`            // Track title as displayed
	Artist   string `json:"artist,omitempty"` // Optional artist credit
}

// ConcertDetails is the metadata fetched before opening a concert channel,
// with the live numbers known to the server at that moment.
type ConcertDetails struct {
	Concert          *Concert               `json:"concert"`
	ActiveListeners  int                    `json:"activeListeners"`
	ReactionCounters map[ReactionKind]int64 `json:"reactionCounters"`
}
