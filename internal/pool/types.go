package pool

// Transform is a pure function mapping one byte block to another, supplied by
// the compression layer. A failed transform returns its error verbatim.
type Transform func(block []byte) ([]byte, error)

// ExecutionPool is a set of workers that can apply a function to each element
// of a sequence, returning results in input order. Completion order across
// workers is unspecified; only the output ordering is guaranteed.
type ExecutionPool interface {
	Map(fn Transform, blocks [][]byte) ([][]byte, error)
}

// WorkerSet is the capability a shared, externally owned pool must expose to
// be borrowed as a backend. Its lifecycle (start/stop) belongs to its owner;
// the lifecycle manager never closes it.
type WorkerSet interface {
	ExecutionPool
}
