package service

// List endpoints return at most MaxListLimit rows.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// clampLimit maps a requested page size into [1, MaxListLimit], with zero or
// negative meaning the default.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
