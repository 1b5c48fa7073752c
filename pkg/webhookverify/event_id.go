package webhookverify

import (
	"encoding/json"
	"strings"
)

// ExtractEventID pulls the logical event id out of a provider payload,
// preferring "id", then "event_id", then "transactionId".
func ExtractEventID(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"id", "event_id", "transactionId"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
