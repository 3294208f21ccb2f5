package service

import (
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09:30", "0 30 9 * * *", false},
		{" 23:59 ", "0 59 23 * * *", false},
		{"24:00", "", true},
		{"9", "", true},
		{"ab:10", "", true},
	}
	for _, tc := range cases {
		got, err := buildDailySpec(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tc.in, tc.wantErr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestBuildIntervalSpec(t *testing.T) {
	got, err := buildIntervalSpec(5 * time.Hour)
	if err != nil || got != "@every 18000s" {
		t.Errorf("Expected @every 18000s, got %q (%v)", got, err)
	}
	if got, _ := buildIntervalSpec(300 * time.Millisecond); got != "@every 1s" {
		t.Errorf("Expected sub-second intervals to round up to 1s, got %q", got)
	}
	if _, err := buildIntervalSpec(0); err == nil {
		t.Errorf("expected error for zero interval")
	}
}

func TestSchedulerServiceRegistersJobs(t *testing.T) {
	s := NewSchedulerService(nil)
	if _, err := s.ScheduleInterval(time.Hour, func() {}); err != nil {
		t.Fatalf("schedule interval: %v", err)
	}
	if _, err := s.ScheduleDaily("08:00", func() {}); err != nil {
		t.Fatalf("schedule daily: %v", err)
	}
	if _, err := s.ScheduleDaily("8am", func() {}); err == nil {
		t.Errorf("expected invalid time to be rejected")
	}
	s.Start()
	s.Stop()
}
