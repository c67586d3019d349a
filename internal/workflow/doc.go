// Package workflow defines declarative pipeline definitions: an ordered list
// of external tool steps whose arguments, inputs and outputs are naming
// templates. Definitions are YAML, either one of the built-ins embedded in
// the binary or a user-supplied file.
package workflow
