package processors

// noDependents serves root collections nothing else references.
// Shifting their ids only re-keys the root collection itself.
type noDependents struct {
	table
}

// NoDependents returns a processor for a root collection without inbound references
func NoDependents(collection string) Processor {
	return noDependents{newTable(collection)}
}

// Tags returns the processor for the tags collection
func Tags() Processor {
	return NoDependents("tags")
}
