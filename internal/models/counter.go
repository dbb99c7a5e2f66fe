package models

import "time"

// QueueCounter holds the last queue number issued on Day (YYYY-MM-DD).
type QueueCounter struct {
	Day       string    `json:"day"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResetRecord marks that the daily reset ran for Day. The scheduler consults it so a
// restart never repeats a reset that already happened.
type ResetRecord struct {
	Day            string    `json:"day"`
	ArchivedCount  int       `json:"archived_count"`
	ResetRoomCount int       `json:"reset_room_count"`
	CompletedAt    time.Time `json:"completed_at"`
}
