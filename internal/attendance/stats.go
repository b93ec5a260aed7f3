package attendance

import (
	"context"
	"fmt"
	"math"
)

// Stats summarizes attendance for one session.
type Stats struct {
	TotalStudents  int     `json:"total_students"`
	PresentCount   int     `json:"present_count"`
	AbsentCount    int     `json:"absent_count"`
	AttendanceRate float64 `json:"attendance_rate"`

	// Overcount is set when there are more marks than enrolled students.
	// AbsentCount is floored at zero in that case.
	Overcount bool `json:"overcount,omitempty"`
}

// Reporter derives attendance statistics from recorded marks.
type Reporter struct {
	store   Store
	classes ClassLookup
	opts    options
}

func NewReporter(store Store, classes ClassLookup, opts ...Option) *Reporter {
	return &Reporter{store: store, classes: classes, opts: buildOptions(opts)}
}

// Stats computes presence counts for a session against its class enrollment.
func (r *Reporter) Stats(ctx context.Context, sessionID int64) (*Stats, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	class, err := r.classes.GetByID(ctx, sess.ClassID)
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return nil, fmt.Errorf("%w: class %d", ErrNotFound, sess.ClassID)
	}

	present, err := r.store.CountMarks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st := ComputeStats(class.TotalStudents, present)
	if st.Overcount {
		r.opts.logger.Warn("more marks than enrolled students",
			"session", sess.ExternalID, "class_id", class.ID,
			"total_students", class.TotalStudents, "present", present)
	}
	return &st, nil
}

// ComputeStats derives absent count and rate, rounded to two decimals.
func ComputeStats(total, present int) Stats {
	st := Stats{
		TotalStudents: total,
		PresentCount:  present,
		AbsentCount:   total - present,
	}
	if st.AbsentCount < 0 {
		st.AbsentCount = 0
		st.Overcount = true
	}
	if total > 0 {
		st.AttendanceRate = math.Round(float64(present)/float64(total)*100*100) / 100
	}
	return st
}
