// Package ai defines the embedding boundary of kbingest.
//
// Chunk texts are embedded during ingestion and query strings are embedded
// during search, both through the Embedder interface. Config describes which
// server and model produce the vectors.
//
// ai/langchain talks to real servers through langchaingo. ai/mock produces
// deterministic vectors for tests.
//
//	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOllama), ai.WithDimensions(384))
//	provider, err := langchain.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, texts)
package ai
