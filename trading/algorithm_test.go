package trading

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEnvironmentValidate(t *testing.T) {
	valid := Environment{
		Start:       clientBase,
		End:         clientBase.Add(time.Hour),
		CapitalBase: decimal.NewFromInt(100000),
		Instruments: []string{"AAPL"},
	}

	tests := []struct {
		name    string
		mutate  func(*Environment)
		wantErr bool
	}{
		{"valid", func(*Environment) {}, false},
		{"zero start", func(e *Environment) { e.Start = time.Time{} }, true},
		{"zero end", func(e *Environment) { e.End = time.Time{} }, true},
		{"end before start", func(e *Environment) { e.End = e.Start.Add(-time.Hour) }, true},
		{"end equals start", func(e *Environment) { e.End = e.Start }, true},
		{"zero capital", func(e *Environment) { e.CapitalBase = decimal.Zero }, true},
		{"negative capital", func(e *Environment) { e.CapitalBase = decimal.NewFromInt(-1) }, true},
		{"no instruments", func(e *Environment) { e.Instruments = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid
			env.Instruments = append([]string(nil), valid.Instruments...)
			tt.mutate(&env)
			err := env.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
