// Package poller follows ingestion progress by listing knowledge sources.
//
// While any source is Pending or Running the Poller lists again after a
// short fixed interval. Once every source is terminal it waits for a
// Trigger (a new submit or refresh) before polling again.
package poller
