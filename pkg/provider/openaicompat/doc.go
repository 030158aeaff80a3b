// Package openaicompat talks to any OpenAI-compatible Chat Completions
// backend (vLLM, LiteLLM, Ollama's /v1 endpoint). It handles request
// serialization, response parsing and error mapping.
package openaicompat
