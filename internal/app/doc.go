// Package app wires application dependencies for the CLI.
//
// It loads Config from a YAML file and ROOMCRYPT_* environment variables,
// opens the configured storage backend and builds the crypto facade on top
// of it, exposing everything through App for commands to use.
package app
