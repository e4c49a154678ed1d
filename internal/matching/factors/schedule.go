package factors

import (
	"fmt"
	"strings"
	"time"
)

const slotLayout = "15:04"

// Availability counts the provider's open, well-formed time slots, capped at
// AvailabilityWeight. Malformed slots are skipped, never fatal.
func Availability(in Input) Result {
	if in.Provider == nil {
		return Result{}
	}
	slots := in.Provider.AvailableSlots
	if len(slots) == 0 {
		return Result{Explanation: "No availability listed"}
	}

	open, malformed := 0, 0
	for _, s := range slots {
		if !validSlot(s.Day, s.Start, s.End) {
			malformed++
			continue
		}
		if s.Available {
			open++
		}
	}

	if open == 0 {
		if malformed > 0 {
			return Result{Explanation: "Availability information could not be read"}
		}
		return Result{Explanation: "No open time slots at the moment"}
	}

	score := minInt(open, maxAvailableSlots)
	if open == 1 {
		return Result{Score: score, Explanation: "Has 1 open time slot"}
	}
	return Result{Score: score, Explanation: fmt.Sprintf("Has %d open time slots", open)}
}

func validSlot(day, start, end string) bool {
	if strings.TrimSpace(day) == "" {
		return false
	}
	from, err := time.Parse(slotLayout, strings.TrimSpace(start))
	if err != nil {
		return false
	}
	to, err := time.Parse(slotLayout, strings.TrimSpace(end))
	if err != nil {
		return false
	}
	return to.After(from)
}

// CallInteraction rewards prior engagement between the pair: a bonus per
// call, per five minutes talked and for the completion rate, each capped.
func CallInteraction(in Input) Result {
	m := in.Metrics
	if m == nil || m.CallCount <= 0 {
		return Result{}
	}

	countBonus := minInt(m.CallCount, CallCountCap)

	minutes := 0
	if m.TotalDurationSeconds > 0 {
		minutes = m.TotalDurationSeconds / 60
	}
	durationBonus := minInt(minutes/minutesPerDuration, CallDurationCap)

	completionBonus := 0
	if m.CompletedCalls > 0 {
		completionBonus = minInt(CallCompletionCap*m.CompletedCalls/m.CallCount, CallCompletionCap)
	}

	score := countBonus + durationBonus + completionBonus
	if m.CallCount == 1 {
		return Result{Score: score, Explanation: "You have had 1 previous call with this advisor"}
	}
	return Result{
		Score:       score,
		Explanation: fmt.Sprintf("You have had %d previous calls with this advisor", m.CallCount),
	}
}
