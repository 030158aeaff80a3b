// Package provider defines the code-generation backend used by the
// correction loop. Backends speak their own protocol behind the Provider
// interface; Generator reduces a Provider to the single prompt-in, text-out
// call the loop needs.
package provider
