package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeProducesExpectedFrame(t *testing.T) {
	data, err := Encode("metrics", map[string]int{"cpu": 10})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := `{"version":1,"channel":"metrics","payload":{"cpu":10}}`
	if string(data) != want {
		t.Errorf("frame = %s, want %s", data, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode("status", map[string]any{"uptime": 42, "ok": true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if env.Channel != "status" {
		t.Errorf("channel = %q, want %q", env.Channel, "status")
	}

	var payload struct {
		Uptime int  `json:"uptime"`
		OK     bool `json:"ok"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.Uptime != 42 || !payload.OK {
		t.Errorf("payload = %+v, want uptime=42 ok=true", payload)
	}
}

func TestEncodeRejectsUnserializablePayload(t *testing.T) {
	if _, err := Encode("metrics", func() {}); err == nil {
		t.Error("expected error for unserializable payload")
	}
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name: "valid envelope",
			data: `{"version":1,"channel":"metrics","payload":{"cpu":10}}`,
		},
		{
			name: "string version accepted",
			data: `{"version":"0.9.2","channel":"metrics","payload":{}}`,
		},
		{
			name:    "missing version",
			data:    `{"channel":"x","payload":{}}`,
			wantErr: ErrMissingVersion,
		},
		{
			name:    "null version",
			data:    `{"version":null,"channel":"x","payload":{}}`,
			wantErr: ErrMissingVersion,
		},
		{
			name:    "missing channel",
			data:    `{"version":1,"payload":{}}`,
			wantErr: ErrMissingChannel,
		},
		{
			name:    "empty channel",
			data:    `{"version":1,"channel":"","payload":{}}`,
			wantErr: ErrMissingChannel,
		},
		{
			name:    "missing payload",
			data:    `{"version":1,"channel":"x"}`,
			wantErr: ErrMissingPayload,
		},
		{
			name:    "null payload",
			data:    `{"version":1,"channel":"x","payload":null}`,
			wantErr: ErrMissingPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.data))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if env == nil {
					t.Fatal("Decode returned nil envelope")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	malformed := []string{
		"",
		"not json",
		`{"version":1,"channel":`,
		`[1,2,3]`,
		`"just a string"`,
	}

	for _, data := range malformed {
		if _, err := Decode([]byte(data)); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", data)
		}
	}
}
