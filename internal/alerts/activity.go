package alerts

// Activity tags whether a condition is currently considered active. A cache
// that was just rebuilt has no history, so it starts every condition at
// ActivityUnknown until a comparison proves otherwise.
type Activity int

const (
	ActivityUnknown Activity = iota
	ActivityActive
	ActivityInactive
)

func (a Activity) String() string {
	switch a {
	case ActivityActive:
		return "ACTIVE"
	case ActivityInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// MaybeActive is false only for ActivityInactive.
func (a Activity) MaybeActive() bool {
	return a != ActivityInactive
}

// ActivityOf maps a boolean active flag onto the tri-state tag.
func ActivityOf(active bool) Activity {
	if active {
		return ActivityActive
	}
	return ActivityInactive
}
