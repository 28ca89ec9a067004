package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Report is a submitted disaster incident. ImageURLs is the civilian's
// original evidence and is immutable after creation; ResponseImages is
// append-only during active response. Both are ordered by upload time.
type Report struct {
	ID             string
	Category       string
	Location       string
	Description    string
	ImageURLs      []string
	Status         string
	AssignedTo     string
	AssignedUserID string
	ResponseImages []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Note is an immutable annotation on a report. AuthorName is denormalized at
// write time so listings need no join.
type Note struct {
	ID         string
	ReportID   string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

type StatusCount struct {
	Status string
	Count  int
}

type CategoryCount struct {
	Category string
	Count    int
}
