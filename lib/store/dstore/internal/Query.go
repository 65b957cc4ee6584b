package internal

import "github.com/ValentinKolb/dTX/lib/datatree"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTRead    QueryType = iota // Retrieve the committed node at a path.
	QueryTCheck                    // Validate modifications against the committed state.
	QueryTGetInfo                  // Retrieve metadata about the shard state.
)

func (q QueryType) String() string {
	switch q {
	case QueryTRead:
		return "Read"
	case QueryTCheck:
		return "Check"
	case QueryTGetInfo:
		return "GetInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType               // The type of Query to perform.
	Path string                  // The path for QueryTRead.
	Mods []datatree.Modification // The modifications for QueryTCheck.
}

// ReadResult is the result of a QueryTRead operation.
// The other query results are error values or store.Info.
type ReadResult struct {
	Found bool
	Node  datatree.Node
}
