// The main package for the iconresolver executable.
//
// Run the HTTP service with `iconresolver serve --config config.yaml`, or
// resolve one page with `iconresolver resolve https://example.com`. Every
// config key can be overridden by an ICONS_ environment variable, for example
// ICONS_SERVER_PORT or ICONS_CACHE_ENABLED.
package main

import (
	"github.com/JakeFAU/favicon-resolver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
