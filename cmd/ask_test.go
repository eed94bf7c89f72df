package cmd

import (
	"testing"
	"time"
)

func TestAskTimeouts(t *testing.T) {
	tests := []struct {
		name     string
		flagIdle time.Duration
		softSet  bool
		flagSoft time.Duration
		wantIdle time.Duration
		wantSoft time.Duration
	}{
		{
			name:     "no overrides keep config values",
			wantIdle: 5 * time.Minute,
			wantSoft: 2 * time.Minute,
		},
		{
			name:     "idle flag overrides config",
			flagIdle: 30 * time.Second,
			wantIdle: 30 * time.Second,
			wantSoft: 2 * time.Minute,
		},
		{
			name:     "soft ceiling flag overrides config",
			softSet:  true,
			flagSoft: 10 * time.Second,
			wantIdle: 5 * time.Minute,
			wantSoft: 10 * time.Second,
		},
		{
			name:     "explicit zero soft ceiling disables the advisory",
			softSet:  true,
			flagSoft: 0,
			wantIdle: 5 * time.Minute,
			wantSoft: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgIdle := 5 * time.Minute
			cfgSoft := 2 * time.Minute

			idle, soft := askTimeouts(cfgIdle, cfgSoft, tt.flagIdle, tt.softSet, tt.flagSoft)
			if idle != tt.wantIdle {
				t.Errorf("expected idle %s, got %s", tt.wantIdle, idle)
			}
			if soft != tt.wantSoft {
				t.Errorf("expected soft ceiling %s, got %s", tt.wantSoft, soft)
			}
		})
	}
}
