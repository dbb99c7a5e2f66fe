package store

import (
	"sort"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
)

// SortPatients orders patients by day, then queue number.
func SortPatients(patients []models.Patient) {
	sort.Slice(patients, func(i, j int) bool {
		if patients[i].Day != patients[j].Day {
			return patients[i].Day < patients[j].Day
		}
		return patients[i].QueueNumber < patients[j].QueueNumber
	})
}

// SortRooms orders rooms by room number, then id.
func SortRooms(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].RoomNumber != rooms[j].RoomNumber {
			return rooms[i].RoomNumber < rooms[j].RoomNumber
		}
		return rooms[i].RoomID < rooms[j].RoomID
	})
}
