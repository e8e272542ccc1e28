// Package mcp provides an MCP (Model Context Protocol) server adapter for Mira.
// It lets AI assistants ask grounded questions and search the credential
// evaluation knowledge base.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
