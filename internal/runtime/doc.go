// Package runtime defines the narrow capability interface the engine host uses
// to drive a native engine runtime, along with a registry of runtime factories
// keyed by driver name.
package runtime
