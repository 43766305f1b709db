// Package langchain implements ai.AIProvider on top of langchaingo.
//
// Two backends are supported: any server speaking the OpenAI embeddings
// protocol (ai.ProviderOpenAI, the default) and Ollama's native API
// (ai.ProviderOllama). Both are wrapped with langchaingo's batching
// embedder, and every returned vector is checked against Config.Dimensions
// when that is set.
package langchain
