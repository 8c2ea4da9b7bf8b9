//go:build tools

// Package tools pins the code generators run by go generate (mockgen)
// so that go.mod and go.sum track them.
package code_lab

import (
	_ "go.uber.org/mock/mockgen"
)
