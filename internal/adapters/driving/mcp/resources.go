package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/mira/internal/core/domain"
)

const (
	documentsURI      = "mira://documents"
	documentURIPrefix = documentsURI + "/"
	mimeJSON          = "application/json"
	mimeText          = "text/plain"
)

// documentInfo is one entry of the documents listing. Indexed is false for
// a record left behind by an interrupted ingest; re-ingesting the file
// repairs it.
type documentInfo struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	URI      string         `json:"uri,omitempty"`
	Resource string         `json:"resource"`
	Chunks   int            `json:"chunks"`
	Indexed  bool           `json:"indexed"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Title:       "Indexed documents",
		Description: "Every document in the knowledge base with its chunk count and metadata",
		MIMEType:    mimeJSON,
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURIPrefix + "{documentId}",
		Name:        "document-content",
		Title:       "Document text",
		Description: "Full text of one document, for checking a citation in context",
		MIMEType:    mimeText,
	}, s.handleDocumentContentResource)
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos := []documentInfo{}
	if s.ports.Documents != nil {
		docs, err := s.ports.Documents.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		for i := range docs {
			infos = append(infos, documentInfo{
				ID:       docs[i].ID,
				Title:    docs[i].Title,
				URI:      docs[i].URI,
				Resource: documentURI(docs[i].ID),
				Chunks:   docs[i].ChunkCount,
				Indexed:  docs[i].ContentHash != "",
				Metadata: docs[i].Metadata,
			})
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}
	return textResult(req.Params.URI, mimeJSON, string(data)), nil
}

func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if s.ports.Documents == nil || docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Documents.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", docID, err)
	}
	return textResult(req.Params.URI, mimeText, doc.Text), nil
}

func textResult(uri, mime, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mime, Text: text}},
	}
}

// documentURI is the resource address of a document. Ids may contain
// slashes or spaces, so they are path-escaped.
func documentURI(id string) string {
	return documentURIPrefix + url.PathEscape(id)
}

// extractDocumentID is the inverse of documentURI. It returns "" for
// anything that is not a document URI.
func extractDocumentID(uri string) string {
	escaped, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || escaped == "" {
		return ""
	}
	id, err := url.PathUnescape(escaped)
	if err != nil {
		return ""
	}
	return id
}
