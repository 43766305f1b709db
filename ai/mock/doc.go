// Package mock provides in-process embedders for tests.
//
// MockEmbedder needs no server and is deterministic: the same text always
// maps to the same unit vector, so a query equal to a chunk's text is its
// best match. Inject failures through EmbedTextFunc or EmbedTextsFunc.
package mock
