// Package generator is the local inference collaborator behind a node's
// /generate endpoint.
//
// A Generator turns a validated Request into a Result. Ollama talks to an
// Ollama server over its HTTP API; Func adapts a plain function and is what
// tests and embedded engines use.
package generator
