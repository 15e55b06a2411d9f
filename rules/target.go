package rules

// IsTargetApplicable reports whether a rule set with the given target applies
// to a cast. Root casts have no parent; replies do. Unknown targets apply to
// everything.
func IsTargetApplicable(target Target, hasParent bool) bool {
	switch target {
	case TargetRoot:
		return !hasParent
	case TargetReply:
		return hasParent
	default:
		return true
	}
}
