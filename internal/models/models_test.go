package models

import (
	"testing"
	"time"
)

func TestRoomValidate(t *testing.T) {
	snapshot := &PatientSnapshot{PatientID: "p1", QueueNumber: 2}
	cases := []struct {
		name  string
		room  Room
		valid bool
	}{
		{"available empty", Room{RoomID: "R1", Status: RoomAvailable}, true},
		{"available occupied", Room{RoomID: "R1", Status: RoomAvailable, CurrentPatient: snapshot}, false},
		{"busy occupied", Room{RoomID: "R1", Status: RoomBusy, CurrentPatient: snapshot}, true},
		{"busy empty", Room{RoomID: "R1", Status: RoomBusy}, false},
		{"paused empty", Room{RoomID: "R1", Status: RoomPaused}, true},
		{"paused occupied", Room{RoomID: "R1", Status: RoomPaused, CurrentPatient: snapshot}, false},
		{"unknown status", Room{RoomID: "R1", Status: "closed"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.room.Validate()
			if (err == nil) != tc.valid {
				t.Fatalf("Validate()=%v, want valid=%v", err, tc.valid)
			}
		})
	}
}

func TestRoomReleased(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	room := Room{RoomID: "R1", Status: RoomBusy, CurrentPatient: &PatientSnapshot{PatientID: "p1"}}
	released := room.Released(at)
	if released.Status != RoomAvailable || released.CurrentPatient != nil || !released.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected released room: %+v", released)
	}
	if room.CurrentPatient == nil {
		t.Fatalf("original room must not be modified")
	}
}

func TestPatientSnapshot(t *testing.T) {
	name, gender := "Ana", "female"
	age := 41
	p := Patient{PatientID: "p1", QueueNumber: 7, Name: &name, Age: &age, Gender: &gender}
	snap := p.Snapshot()
	if snap.PatientID != "p1" || snap.QueueNumber != 7 || snap.Name != "Ana" || snap.Age != 41 || snap.Gender != "female" || snap.Notes != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
