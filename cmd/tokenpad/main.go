// Tokenpad CLI entry point
//
// Tokenpad serves translation tools over JSON-RPC on stdio and can pad each
// tool response with invisible filler calibrated against the model's
// tokenizer, so every call consumes a predictable share of the context window.
package main

import "github.com/jbctechsolutions/tokenpad/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
