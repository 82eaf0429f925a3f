//go:build tools

// Package tools pins development tool dependencies.
package tools

import (
	_ "golang.org/x/tools/cmd/goimports"
	_ "gotest.tools/gotestsum"
)
