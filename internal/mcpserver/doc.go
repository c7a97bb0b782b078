// Package mcpserver exposes the task pipeline as Model Context Protocol tools
// over stdio, so an MCP client can submit analyses, poll and cancel them and
// read the finished reports. All tools act on behalf of one configured owner.
package mcpserver
