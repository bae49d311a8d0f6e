// Package mcp exposes devopsd over the Model Context Protocol.
//
// The server registers tools that run workflows, generate GitLab CI pipelines
// and validate Terraform text. It calls the orchestrator and agents in-process
// and serves them on the stdio transport.
package mcp
