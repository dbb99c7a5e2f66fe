package store

import "github.com/ameliapapa/queue-manager-v2-sub000/internal/models"

var transitionMap = map[string][]string{
	"register": {models.StatusUnregistered},
	"assign":   {models.StatusRegistered},
	"complete": {models.StatusAssigned},
	"cancel":   {models.StatusUnregistered, models.StatusRegistered, models.StatusAssigned},
	"archive":  {models.StatusUnregistered, models.StatusRegistered, models.StatusAssigned},
}

var roomTransitionMap = map[string][]string{
	"occupy":  {models.RoomAvailable},
	"release": {models.RoomBusy},
	"pause":   {models.RoomAvailable},
	"resume":  {models.RoomPaused},
}

func ValidTransition(action, fromStatus string) bool {
	return allowed(transitionMap, action, fromStatus)
}

func ValidRoomTransition(action, fromStatus string) bool {
	return allowed(roomTransitionMap, action, fromStatus)
}

func allowed(table map[string][]string, action, fromStatus string) bool {
	statuses, ok := table[action]
	if !ok {
		return false
	}
	for _, status := range statuses {
		if status == fromStatus {
			return true
		}
	}
	return false
}
