// Package litellm adapts a LiteLLM proxy as the code generator backend.
// LiteLLM speaks the OpenAI Chat Completions API, so this package only adds
// model name mapping on top of openaicompat.
package litellm
