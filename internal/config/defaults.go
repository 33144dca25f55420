package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kaiwa/data/db/kaiwa.db"
	}
	if cfg.Storage.UploadPath == "" {
		cfg.Storage.UploadPath = "/usr/local/var/kaiwa/data/uploads"
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.GenerationModel == "" {
		cfg.Ollama.GenerationModel = "llama3.2"
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Ollama.EmbeddingDimensions == 0 {
		cfg.Ollama.EmbeddingDimensions = 768
	}
	if cfg.Ollama.TimeoutSeconds == 0 {
		cfg.Ollama.TimeoutSeconds = 120
	}
	if cfg.Ollama.PullTimeoutSeconds == 0 {
		// Model pulls download gigabytes; give them their own, much longer limit.
		cfg.Ollama.PullTimeoutSeconds = 600
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 512
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 64
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 50 << 20
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Query.MaxTopK == 0 {
		cfg.Query.MaxTopK = 20
	}
	if cfg.Query.HistoryWindow == 0 {
		cfg.Query.HistoryWindow = 6
	}
	if cfg.Query.SnippetLength == 0 {
		cfg.Query.SnippetLength = 200
	}
}
