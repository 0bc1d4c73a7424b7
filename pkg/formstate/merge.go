package formstate

// MergeWithPrior reconciles a freshly collected tree with the previously
// persisted snapshot. Top-level keys present only in previous are
// re-injected: they belong to fields the form never rendered, and their
// saved values must survive a partial edit. The one exception is an
// array-typed key whose rendering container is live (arrayLive returns
// true): the rows were on screen, so their absence means the user deleted
// them all, and re-injecting would resurrect deleted rows.
//
// Neither input is mutated; arrayLive may be nil when no containers are
// rendered.
func MergeWithPrior(collected, previous Tree, arrayLive func(key string) bool) Tree {
	merged := collected.Clone()
	if merged == nil {
		merged = NewTree()
	}

	for key, value := range previous {
		if _, present := merged[key]; present {
			continue
		}
		if _, isArray := value.([]any); isArray && arrayLive != nil && arrayLive(key) {
			continue
		}
		merged[key] = copyValue(value)
	}
	return merged
}
