// Package client implements the frontend side of the transaction access
// protocol: revision negotiation, request sequencing with retries, and the
// History and Transaction handles applications work with.
//
// The package focuses on:
//   - Numbering the requests of every target and retransmitting them with the
//     same sequence number and the same bytes until a response arrives
//   - Discarding responses that belong to no outstanding request
//   - Downgrading every request to the negotiated revision before it is sent
//
// Key Components:
//
//   - Sequencer: per target sequence allocation, the outstanding request
//     table and the retry loop. Retransmission is done here, never by the
//     transport.
//
//   - Frontend: one client generation. Connect negotiates the revision,
//     CreateHistory and Standalone hand out histories.
//
//   - History and Transaction: typed wrappers for the history and
//     transaction requests.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Member:       "member-1",
//	  FrontendType: "datastore",
//	  Generation:   1,
//	  Retry:        common.DefaultRetryConfig(),
//	}
//	config.Transport.Endpoints = []string{"localhost:8080"}
//
//	f, _ := client.NewFrontend(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if _, err := f.Connect(ctx); err != nil {
//	  return err
//	}
//
//	tx := f.Standalone().Begin()
//	_ = tx.Write(ctx, "/inventory", []byte(`{"count":1}`))
//	index, err := tx.Commit(ctx)
//
// Errors:
//
//	Backend failures are returned as *common.RequestError, an exhausted retry
//	budget as *TimeoutError. Match them with errors.Is against the error
//	classes of the common package.
//
// Thread Safety:
//
//	All types are safe for concurrent use. Requests of one target are applied
//	by the backend in the order their sequence numbers were allocated.
package client
