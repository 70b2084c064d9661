package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// tripDateLayouts covers the date formats seen in the trip CSV exports. The
// short "1/2/06 15:04" form is the one the raw_trips table actually uses.
var tripDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/06 15:04",
	"1/2/06",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

// ParseTripDate parses a date string in any of the known trip data formats.
func ParseTripDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range tripDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}

// TimeOfDay buckets an hour into Morning/Afternoon/Evening/Night.
func TimeOfDay(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 5 && hour < 12:
		return "Morning"
	case hour >= 12 && hour < 17:
		return "Afternoon"
	case hour >= 17 && hour < 22:
		return "Evening"
	default:
		return "Night"
	}
}

// WeekendStatus reports "Weekend" for Saturday/Sunday, "Weekday" otherwise.
func WeekendStatus(t time.Time) string {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return "Weekend"
	}
	return "Weekday"
}

type dateInput struct {
	Date string `json:"date" jsonschema:"description=Date string to analyze, e.g. 9/8/25 11:47 or 2024-01-15 14:30:00"`
}

func analyzeDate(_ context.Context, in *dateInput) (string, error) {
	t, err := ParseTripDate(in.Date)
	if err != nil {
		return fmt.Sprintf("Could not parse date %q. Expected formats like 9/8/25 11:47 or 2024-01-15 14:30:00.", in.Date), nil
	}

	return fmt.Sprintf("DATE: %s\nDAY OF WEEK: %s\nWEEKEND STATUS: %s\nTIME OF DAY: %s",
		t.Format("2006-01-02 15:04"), t.Weekday(), WeekendStatus(t), TimeOfDay(t)), nil
}

// NewDateTool returns the date analysis tool: day of week, weekend flag, and
// time-of-day bucket for trip timestamps.
func NewDateTool() (tool.InvokableTool, error) {
	return utils.InferTool(
		"analyze_date_patterns",
		"Analyze a trip date string: day of week, weekend vs weekday, and time of day. Use when a question involves days, weekends, or times of day.",
		analyzeDate,
	)
}
