package application

import (
	"fmt"
	"time"

	"github.com/scorpionhol/pointage/internal/domain"
)

// Reference times for classification, minutes since midnight on the stored
// UTC basis. Arrival strictly after 08:15 is late; departure strictly after
// 17:00 counts as overtime.
const (
	arrivalReferenceMinutes   = 8*60 + 15
	departureReferenceMinutes = 17 * 60
)

type historyKey struct {
	named bool
	name  string
	date  string
}

type historyGroup struct {
	arrival   *time.Time
	departure *time.Time
}

// AggregateHistory folds raw punch rows into one DailyRecord per (agent name,
// UTC calendar day). Within a group only the earliest "arrivee" and the latest
// "depart" survive; every other type keeps the group alive without filling
// either side. Rows with an unresolved agent share a single null-name group
// per day. Rows whose timestamp does not parse are dropped.
func AggregateHistory(rows []domain.PunchRow) []domain.DailyRecord {
	order := make([]historyKey, 0)
	groups := make(map[historyKey]*historyGroup)
	names := make(map[historyKey]*string)

	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Time)
		if err != nil {
			continue
		}
		ts = ts.UTC()

		key := historyKey{date: ts.Format("2006-01-02")}
		if row.AgentName != nil {
			key.named = true
			key.name = *row.AgentName
		}

		group, ok := groups[key]
		if !ok {
			group = &historyGroup{}
			groups[key] = group
			names[key] = row.AgentName
			order = append(order, key)
		}

		switch row.Type {
		case "arrivee":
			if group.arrival == nil || ts.Before(*group.arrival) {
				t := ts
				group.arrival = &t
			}
		case "depart":
			if group.departure == nil || ts.After(*group.departure) {
				t := ts
				group.departure = &t
			}
		}
	}

	records := make([]domain.DailyRecord, 0, len(order))
	for _, key := range order {
		group := groups[key]
		record := domain.DailyRecord{Name: names[key], Date: key.date}

		if group.arrival != nil {
			record.Arrivee = formatClock(*group.arrival)
			record.ArriveeRetard = minutesOfDay(*group.arrival) > arrivalReferenceMinutes
		}
		if group.departure != nil {
			record.Depart = formatClock(*group.departure)
			if extra := minutesOfDay(*group.departure) - departureReferenceMinutes; extra > 0 {
				formatted := fmt.Sprintf("%dh%02d", extra/60, extra%60)
				record.HeuresSup = &formatted
			}
		}

		records = append(records, record)
	}
	return records
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func formatClock(t time.Time) *string {
	s := t.Format("15:04")
	return &s
}
