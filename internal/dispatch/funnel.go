package dispatch

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// FilterBySkill keeps agents holding skill or the general skill.
func FilterBySkill(agents []domain.Agent, skill string) []domain.Agent {
	out := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		if a.HasSkill(skill) || a.HasSkill(domain.SkillGeneral) {
			out = append(out, a)
		}
	}
	return out
}

// FilterByShift keeps agents that are on shift at now.
func FilterByShift(agents []domain.Agent, now time.Time) []domain.Agent {
	out := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		if IsOnShift(a.Schedule, now) {
			out = append(out, a)
		}
	}
	return out
}

// IsOnShift reports whether the schedule covers now. On-call agents are
// always available; otherwise a shift must match the weekday in the
// schedule's timezone and contain the HH:MM clock time, bounds inclusive.
func IsOnShift(s domain.Schedule, now time.Time) bool {
	if s.OnCall {
		return true
	}
	local := now.In(scheduleLocation(s.Timezone))
	day := dayKey(local.Weekday().String())
	clock := local.Format("15:04")
	for _, shift := range s.Shifts {
		if dayKey(shift.Day) != day {
			continue
		}
		if shift.Start <= clock && clock <= shift.End {
			return true
		}
	}
	return false
}

func scheduleLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// dayKey normalizes "Monday", "monday" and "Mon" to "mon".
func dayKey(day string) string {
	day = strings.ToLower(strings.TrimSpace(day))
	if len(day) > 3 {
		day = day[:3]
	}
	return day
}
