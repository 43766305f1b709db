package badger

// NewMemoryStores opens an in-memory backend with a registry and chunk store
// on top of it. Close the stores before the backend.
func NewMemoryStores(opts ...BackendOption) (*SourceRegistry, *ChunkStore, *Backend, error) {
	backend, err := OpenBackend("", true, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := NewSourceRegistry(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	chunks, err := NewChunkStore(backend)
	if err != nil {
		registry.Close()
		backend.Close()
		return nil, nil, nil, err
	}
	return registry, chunks, backend, nil
}
