// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - PromptStore: user-editable LLM prompt templates under ~/.jarvis/prompts
package file
