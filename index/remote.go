package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Remote queries a hosted hybrid search index over HTTP. The service
// fuses lexical and vector legs itself and applies filters before
// truncating to top-k; we send both legs plus the filter and read the
// unified score back.
type Remote struct {
	endpoint       string
	apiKey         string
	indexName      string
	semanticConfig string
	httpClient     *http.Client
}

// selectFields is the document projection requested from the index.
const selectFields = "id,document_id,content,metadata,chunk_index"

// NewRemote creates a remote index client. semanticConfig may be empty
// to skip semantic reranking.
func NewRemote(endpoint, apiKey, indexName, semanticConfig string) *Remote {
	return &Remote{
		endpoint:       endpoint,
		apiKey:         apiKey,
		indexName:      indexName,
		semanticConfig: semanticConfig,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type remoteVectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
	Filter string    `json:"filter,omitempty"`
}

type remoteSearchRequest struct {
	Search         string              `json:"search"`
	VectorQueries  []remoteVectorQuery `json:"vectorQueries,omitempty"`
	Select         string              `json:"select"`
	Filter         string              `json:"filter,omitempty"`
	Top            int                 `json:"top"`
	QueryType      string              `json:"queryType,omitempty"`
	SemanticConfig string              `json:"semanticConfiguration,omitempty"`
}

type remoteSearchDoc struct {
	Score      float64        `json:"@search.score"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

type remoteSearchResponse struct {
	Value []remoteSearchDoc `json:"value"`
}

// Search runs a hybrid query against the hosted index.
func (r *Remote) Search(ctx context.Context, query *Query) ([]*Chunk, error) {
	topK := query.TopK
	if topK <= 0 {
		topK = 5
	}
	reqBody := remoteSearchRequest{
		Search: query.Text,
		Select: selectFields,
		Filter: query.Filter,
		Top:    topK,
	}
	if r.semanticConfig != "" {
		reqBody.QueryType = "semantic"
		reqBody.SemanticConfig = r.semanticConfig
	}
	if len(query.Vector) > 0 {
		reqBody.VectorQueries = []remoteVectorQuery{{
			Kind:   "vector",
			Vector: query.Vector,
			Fields: "embedding",
			K:      topK,
			Filter: query.Filter,
		}}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshal search request")
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=2024-07-01", r.endpoint, r.indexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(ErrUnavailable, "index returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("index query failed: %d %s", resp.StatusCode, string(body))
	}

	var body remoteSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	chunks := make([]*Chunk, 0, len(body.Value))
	for _, doc := range body.Value {
		chunks = append(chunks, &Chunk{
			DocumentID: doc.DocumentID,
			ChunkIndex: doc.ChunkIndex,
			Content:    doc.Content,
			Metadata:   doc.Metadata,
			Score:      doc.Score,
		})
	}
	return chunks, nil
}
