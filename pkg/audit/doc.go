// Package audit is the append-only audit log for the dispatch core.
//
// Entries carry a Kind (RequestOnly, RequestResponse, ExpectationMatch)
// and an Event (EXPECTATION_RESPONSE, EXPECTATION_NOT_MATCHED,
// FORWARDED_REQUEST). The dispatcher is responsible for appending exactly
// the entries its invariants require per request; this package only
// guarantees thread-safe, sequence-numbered append.
//
//	logger, err := audit.NewLogger(&audit.Config{Enabled: true, Backend: audit.BackendJSONLines})
//	defer logger.Close()
//	logger.Append(*audit.New(audit.KindExpectationMatch, audit.EventExpectationResponse, traceID))
package audit
