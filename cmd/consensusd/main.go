// Package main is the entry point for the consensusd service.
//
// consensusd fans a question out to several LLM providers, scores their
// replies for pairwise agreement, optionally runs a chain-of-thought
// refinement loop, and serves the result over HTTP.
//
// Usage:
//
//	./consensusd
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string for analytics
//	BACKEND_API_KEYS - comma-separated bearer tokens accepted by the API (required)
//	MODEL_DESCRIPTOR_PATH - path to the model-descriptor YAML file (default: models.yaml)
//	CACHE_BACKEND_URL - redis://host:port[/db]; empty uses an in-memory cache
//	ALLOWED_ORIGINS - comma-separated CORS allow-list (no wildcard default)
package main

import "log"

func main() {
	if err := run(); err != nil {
		log.Fatalf("consensusd: %v", err)
	}
}
