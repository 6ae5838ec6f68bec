package models

// Status is the drain state reported by the classifier
type Status string

const (
	StatusNormal  Status = "NORMAL"
	StatusBlocked Status = "BLOCKED"
)

// Valid reports whether s is one of the two known states
func (s Status) Valid() bool {
	return s == StatusNormal || s == StatusBlocked
}
