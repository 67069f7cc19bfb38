package report

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
)

// AttendanceSummarizer tallies a student's attendance over a semester.
type AttendanceSummarizer struct {
	calendar   Calendar
	attendance Attendance
}

func NewAttendanceSummarizer(calendar Calendar, attendance Attendance) *AttendanceSummarizer {
	return &AttendanceSummarizer{calendar: calendar, attendance: attendance}
}

// Summarize never fails on an unknown semester: it returns an all-zero tally.
func (s *AttendanceSummarizer) Summarize(ctx context.Context, studentID, semesterID string) (AttendanceSummary, error) {
	sem, err := s.calendar.GetSemester(ctx, semesterID)
	if err != nil {
		if core.IsNotFound(err) {
			return AttendanceSummary{}, nil
		}
		return AttendanceSummary{}, errors.Wrap(err, "finding semester")
	}

	counts, err := s.attendance.AttendanceCounts(ctx, studentID, sem.StartDate, sem.EndDate)
	if err != nil {
		return AttendanceSummary{}, errors.Wrap(err, "counting attendance")
	}
	return AttendanceSummary{
		Present: counts[StatusPresent],
		Late:    counts[StatusLate],
		Sick:    counts[StatusSick],
		Excused: counts[StatusExcused],
		Absent:  counts[StatusAbsent],
	}, nil
}
