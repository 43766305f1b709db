// Package ingestion runs knowledge sources through the ingestion pipeline.
//
// The Service type accepts sources and answers status queries. Each accepted
// source becomes a Job on a bounded FIFO Queue drained by a worker pool.
// A worker takes the source through these stages, recording progress in the
// source registry after each one:
//   - Extracting: read the file with the extractor for its extension
//   - Chunking: split the text into overlapping chunks
//   - Embedding: embed chunks in batches, retrying transient failures
//   - Storing: write the chunks, atomically replacing them on refresh
//
// At most one job per source is queued or running at a time. Failures end
// the run with a Failed status and leave previously stored chunks intact;
// they are never returned to the caller that submitted the source.
package ingestion
