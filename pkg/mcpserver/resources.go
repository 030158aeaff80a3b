package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	stateURI     = "workspace://state"
	filesPrefix  = "workspace://files/"
	dirPrefix    = "workspace://directory/"
	maxFileBytes = 1 << 20
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         stateURI,
		Name:        "workspace-state",
		Description: "Sandbox settings and the top-level workspace listing",
		MIMEType:    "text/plain",
	}, s.readState)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: filesPrefix + "{+path}",
		Name:        "workspace-file",
		Description: "Contents of a file in the workspace",
		MIMEType:    "text/plain",
	}, s.readFile)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: dirPrefix + "{+path}",
		Name:        "workspace-directory",
		Description: "Listing of a directory in the workspace",
		MIMEType:    "text/plain",
	}, s.readDirectory)
}

func (s *Server) readState(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	var b strings.Builder
	if s.info != nil {
		info, err := json.MarshalIndent(s.info(), "", "  ")
		if err != nil {
			return nil, err
		}
		b.WriteString("Sandbox:\n")
		b.Write(info)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Workspace %s:\n", s.workspace)

	listing, err := s.listDirectory(".")
	if err != nil {
		fmt.Fprintf(&b, "Error getting workspace state: %v\n", err)
	} else {
		b.WriteString(listing)
	}
	return textContents(req.Params.URI, b.String()), nil
}

func (s *Server) readFile(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	name, ok := resourcePath(uri, filesPrefix)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	root, err := os.OpenRoot(s.workspace)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, fmt.Errorf("file %s is not readable: %w", name, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes))
	if err != nil {
		return nil, err
	}
	return textContents(uri, string(data)), nil
}

func (s *Server) readDirectory(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	name, ok := resourcePath(uri, dirPrefix)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	listing, err := s.listDirectory(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return textContents(uri, "Directory is empty or does not exist.\n"), nil
		}
		return nil, err
	}
	return textContents(uri, listing), nil
}

// listDirectory renders a Name/Type/Size table of dir, which is relative to
// the workspace. os.Root refuses names that escape it.
func (s *Server) listDirectory(dir string) (string, error) {
	root, err := os.OpenRoot(s.workspace)
	if err != nil {
		return "", err
	}
	defer root.Close()

	entries, err := fs.ReadDir(root.FS(), dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Directory is empty or does not exist.\n", nil
	}

	var b strings.Builder
	b.WriteString("Name\t\tType\t\tSize\n")
	b.WriteString("----\t\t----\t\t----\n")
	for _, e := range entries {
		kind, size := "file", int64(0)
		if e.IsDir() {
			kind = "directory"
		} else if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "%s\t\t%s\t\t%s\n", e.Name(), kind, formatSize(size))
	}
	return b.String(), nil
}

// resourcePath extracts a cleaned, workspace-relative path from uri. An
// empty remainder names the workspace root.
func resourcePath(uri, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return "", false
	}
	p := path.Clean("/" + rest)[1:]
	if p == "" {
		p = "."
	}
	return p, true
}

func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}

func textContents(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}
}
