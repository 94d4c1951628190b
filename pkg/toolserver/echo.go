// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/openmcp/pkg/actor"
)

// KindEcho is the built-in echo implementation.
const KindEcho = "echo"

// echoArgs are the arguments of the echo tool.
type echoArgs struct {
	Message string `json:"message"`
}

// EchoFactory returns a factory for the echo server. The actor's "prefix"
// configuration value is prepended to every echoed message.
func EchoFactory(name, version string) actor.Factory {
	return func(_ context.Context, cfg actor.Config, _ string) (actor.ServerHandle, error) {
		prefix, _ := cfg["prefix"].(string)

		mcpServer := server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(false),
		)

		mcpServer.AddTool(mcp.Tool{
			Name:        "echo",
			Description: "Echo a message back, prefixed with the server's configured prefix",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"message": map[string]interface{}{
						"type":        "string",
						"description": "Message to echo",
					},
				},
				Required: []string{"message"},
			},
		}, func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args echoArgs
			if err := request.BindArguments(&args); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
			}
			return mcp.NewToolResultText(prefix + args.Message), nil
		})

		mcpServer.AddTool(mcp.Tool{
			Name:        "client_config",
			Description: "Show the client configuration supplied with the current request",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		}, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cc, ok := actor.ClientConfigFromContext(ctx)
			if !ok {
				cc = actor.ClientConfig{}
			}
			data, err := json.Marshal(cc)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to encode client config: %v", err)), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		})

		return New(mcpServer), nil
	}
}
