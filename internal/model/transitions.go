package model

// instanceTransitions is the campaign instance status machine. Completed and
// failed are terminal.
var instanceTransitions = map[string][]string{
	InstanceDraft:     {InstanceActive},
	InstanceActive:    {InstancePaused, InstanceCompleted},
	InstancePaused:    {InstanceActive, InstanceCompleted},
	InstanceCompleted: {},
	InstanceFailed:    {},
}

// CanTransition reports whether an instance may move from one status to
// another. Same-status moves are not transitions.
func CanTransition(from, to string) bool {
	for _, allowed := range instanceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidInstanceStatus reports whether s is a known instance status.
func ValidInstanceStatus(s string) bool {
	_, ok := instanceTransitions[s]
	return ok
}
