package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is the MCP server version reported to clients.
const Version = "0.1.0"

// Server exposes stored legislative records to MCP clients. Every tool and
// resource is read-only; nothing a client does can reach the upstream APIs
// or mutate the data root.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates the server and registers its tools and resources.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "legisync",
			Version: Version,
		}, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves MCP over stdio, the transport desktop assistants spawn the
// binary with. Blocks until the context is cancelled or the stream ends.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over streamable HTTP on addr. Blocks until the
// context is cancelled or the listener fails.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
