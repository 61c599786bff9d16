package publisher

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValues(t *testing.T) {
	now := time.Unix(1728158400, 0)
	values, err := Values(map[string]any{"source": "N2F-A", "updated": 3}, now)
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if values["timestamp"] != now.Unix() {
		t.Errorf("timestamp = %v", values["timestamp"])
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(values["data"].(string)), &decoded); err != nil {
		t.Fatalf("data is not JSON: %v", err)
	}
	if decoded["source"] != "N2F-A" {
		t.Errorf("data = %v", decoded)
	}
}

func TestNewRedisStreamPublisherDefaultStream(t *testing.T) {
	if got := NewRedisStreamPublisher(nil, "").Stream(); got != DefaultRunStream {
		t.Errorf("Stream() = %q", got)
	}
}
