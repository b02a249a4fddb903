//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run via `go run` or installed globally via `go install` and are not
// tracked in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - gomock generator for the repository ports (internal/mocks)
//   Run: go generate ./internal/mocks
//   Version: v0.6.0 (matches go.uber.org/mock in go.mod)
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - linters behind the nolint directives in this repo
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@v2.4.0
//   Docs: https://golangci-lint.run
