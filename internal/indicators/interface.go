package indicators

// Indicator is the common surface of the technical indicators. Every
// Calculate is a deterministic, pure pass over the bar history it is
// given: calling it twice on the same slice yields the same value, and
// short history yields a defined neutral value instead of an error.
type Indicator interface {
	GetName() string
	GetRequiredPeriods() int
}
