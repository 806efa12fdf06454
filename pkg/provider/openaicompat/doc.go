// Package openaicompat implements a chat provider for any OpenAI-compatible
// Chat Completions backend (vLLM, Ollama, LiteLLM, llama.cpp server). It is
// the usual local provider for auto routing.
package openaicompat
