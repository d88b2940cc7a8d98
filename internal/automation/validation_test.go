package automation

import (
	"errors"
	"testing"
)

// validConfig returns a definition that passes validation.
func validConfig() map[string]any {
	return map[string]any{
		"id":    "1756600000000",
		"alias": "Morning lights",
		"mode":  "single",
		"trigger": []any{
			map[string]any{"platform": "time", "at": "07:00:00"},
		},
		"condition": []any{
			map[string]any{"condition": "state", "entity_id": "binary_sensor.workday", "state": "on"},
		},
		"action": []any{
			map[string]any{"service": "light.turn_on", "target": map[string]any{"entity_id": "light.kitchen"}},
		},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg map[string]any)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(map[string]any) {},
		},
		{
			name:   "plural key spellings",
			mutate: func(cfg map[string]any) {
				cfg["triggers"] = cfg["trigger"]
				cfg["actions"] = cfg["action"]
				delete(cfg, "trigger")
				delete(cfg, "action")
			},
		},
		{
			name: "single mapping promoted to list",
			mutate: func(cfg map[string]any) {
				cfg["trigger"] = map[string]any{"platform": "state", "entity_id": "sun.sun"}
			},
		},
		{
			name:    "missing id",
			mutate:  func(cfg map[string]any) { delete(cfg, "id") },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "missing trigger",
			mutate:  func(cfg map[string]any) { delete(cfg, "trigger") },
			wantErr: ErrMissingTrigger,
		},
		{
			name:    "missing action",
			mutate:  func(cfg map[string]any) { delete(cfg, "action") },
			wantErr: ErrMissingAction,
		},
		{
			name:    "unknown mode",
			mutate:  func(cfg map[string]any) { cfg["mode"] = "turbo" },
			wantErr: ErrInvalidMode,
		},
		{
			name:    "non-string mode",
			mutate:  func(cfg map[string]any) { cfg["mode"] = 3 },
			wantErr: ErrInvalidMode,
		},
		{
			name: "trigger without platform",
			mutate: func(cfg map[string]any) {
				cfg["trigger"] = []any{map[string]any{"at": "07:00:00"}}
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "trigger not a mapping",
			mutate: func(cfg map[string]any) {
				cfg["trigger"] = []any{"time"}
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "condition without type",
			mutate: func(cfg map[string]any) {
				cfg["condition"] = []any{map[string]any{"entity_id": "sun.sun"}}
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "overlong alias",
			mutate: func(cfg map[string]any) {
				alias := make([]byte, maxAliasLength+1)
				for i := range alias {
					alias[i] = 'a'
				}
				cfg["alias"] = string(alias)
			},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateConfig() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateConfig() error = %v", err)
			}
		})
	}
}

func TestValidateConfigNil(t *testing.T) {
	if err := ValidateConfig(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ValidateConfig(nil) error = %v, want ErrInvalidConfig", err)
	}
}
