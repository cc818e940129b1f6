//go:build tools

// Package tools pins the code generators run by go generate.
package huddle

import (
	_ "go.uber.org/mock/mockgen"
)
