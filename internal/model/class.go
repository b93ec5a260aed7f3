package model

import "time"

type Class struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Subject       string    `json:"subject"`
	TotalStudents int       `json:"total_students"`
	InstructorID  int64     `json:"instructor_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
