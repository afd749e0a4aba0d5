package timeparse

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		day     int
		time    string
		timeOK  bool
	}{
		{"Thursday 7:00 PM", 4, "19:00", true},
		{"Tuesdays from 7.30pm", 2, "19:30", true},
		{"8pm", 0, "20:00", true},
		{"Every Monday, 6:30", 1, "18:30", true},
		{"WED 8:00PM", 3, "20:00", true},
		{"Sunday quiz at 12pm", 7, "12:00", true},
		{"Sat 12am start", 6, "00:00", true},
		{"Fridays 19:00", 5, "19:00", true},
		{"garbage", 0, DefaultStartTime, false},
		{"", 0, DefaultStartTime, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if got.DayOfWeek != tt.day {
			t.Errorf("Parse(%q) day = %d, want %d", tt.in, got.DayOfWeek, tt.day)
		}
		if got.StartTime != tt.time {
			t.Errorf("Parse(%q) time = %s, want %s", tt.in, got.StartTime, tt.time)
		}
		if ok != tt.timeOK {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.timeOK)
		}
	}
}

func TestParseTimeAssumesPM(t *testing.T) {
	// Bare 12-hour times without a marker are treated as evening times.
	for in, want := range map[string]string{
		"1:00":  "13:00",
		"6:30":  "18:30",
		"11:15": "23:15",
		"12:00": "12:00",
	} {
		got, ok := ParseTime(in)
		if !ok || got != want {
			t.Errorf("ParseTime(%q) = %s (ok=%v), want %s", in, got, ok, want)
		}
	}
}
