package fanout

import (
	"fmt"
	"strings"
)

func templateForEvent(eventType string) string {
	switch eventType {
	case EventQueueIssued:
		return "queue_issued"
	case EventRoomAssigned:
		return "patient_called"
	default:
		return ""
	}
}

func titleForTemplate(templateID string) string {
	switch templateID {
	case "queue_issued":
		return "Ticket issued"
	case "patient_called":
		return "Now serving"
	}
	return ""
}

func defaultTemplate(templateID string) string {
	switch templateID {
	case "queue_issued":
		return "Ticket {queue_number} issued."
	case "patient_called":
		return "Ticket {queue_number}, please proceed to room {room_number}."
	}
	return ""
}

func renderTemplate(template string, payload map[string]interface{}) string {
	result := template
	result = strings.ReplaceAll(result, "{queue_number}", str(payload, "queue_number"))
	result = strings.ReplaceAll(result, "{room_number}", str(payload, "room_number"))
	result = strings.ReplaceAll(result, "{room_id}", str(payload, "room_id"))
	result = strings.ReplaceAll(result, "{doctor_name}", str(payload, "doctor_name"))
	return result
}

func str(payload map[string]interface{}, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}
