// Package ids defines the identifiers of the transaction access protocol.
//
// A frontend (the process issuing transactions, co-located with a client)
// owns a ClientID: its FrontendID plus a generation that changes every time the
// frontend restarts. Under a client live local histories (HistoryID), causal
// chains of transactions against one shard, and under a history live the
// transactions themselves (TransactionID).
//
// All identifiers are small comparable values: they can be used as map keys,
// compared with ==, and ordered with their Compare methods. Equality and order
// are defined purely on their fields; two transactions from different
// histories are never equal even if their local sequence numbers coincide.
//
// Only the frontend allocates identifiers (see Generator and TxSequencer); the
// backend echoes them.
package ids
