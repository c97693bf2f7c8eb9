//go:build tools

// Package lint pins the linters run over go-multiversion.
// This is a separate module to keep the main go.mod free of tool dependencies.
//
// Usage from project root:
//
//	go run -modfile=tools/lint/go.mod github.com/golangci/golangci-lint/v2/cmd/golangci-lint run ./...
//	go run -modfile=tools/lint/go.mod honnef.co/go/tools/cmd/staticcheck ./...
//
// Generated *_multiversion*.go files carry the standard "Code generated" header
// and are excluded by both linters.
package lint
