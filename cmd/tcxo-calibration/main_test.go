package main

import (
	"testing"

	"github.com/shiwa/timecard-mini/tcxo-sync/internal/regmap"
)

func TestParseSet(t *testing.T) {
	tests := []struct {
		args []string
		want regmap.Calibration
		err  bool
	}{
		{
			args: []string{"20.465", "-0.02", "77.5", "0.001", "120", "-10", "15"},
			want: regmap.Calibration{A: 20.465, B: -0.02, C: 77.5, D: 0.001, MaxTemp: 120, MinTemp: -10, RMSE: 15},
		},
		{args: []string{"1", "2", "3"}, err: true},
		{args: []string{"x", "0", "0", "0", "0", "0", "0"}, err: true},
		{args: []string{"0", "0", "0", "0", "300", "0", "0"}, err: true},
		{args: []string{"0", "0", "0", "0", "100", "-200", "0"}, err: true},
	}
	for _, tt := range tests {
		got, err := parseSet(tt.args)
		if (err != nil) != tt.err {
			t.Errorf("parseSet(%v): ошибка %v", tt.args, err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("parseSet(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}
