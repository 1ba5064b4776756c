package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/config"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

const (
	apiPrefix     = "/api/v2"
	maxErrorBody  = 2048
	defaultTenant = "default_tenant"
	defaultDB     = "default_database"

	provisionTimeout = 30 * time.Second
)

// ChromaStore implements VectorStore against a Chroma v2 REST server.
type ChromaStore struct {
	baseURL    string
	token      string
	tenant     string
	database   string
	collection string
	httpClient *http.Client
	logger     *slog.Logger

	group        singleflight.Group
	mu           sync.Mutex
	collectionID string
}

var _ ports.VectorStore = (*ChromaStore)(nil)

// NewChromaStore builds a store from configuration. A nil httpClient gets a
// default one.
func NewChromaStore(cfg config.VectorStoreConfig, httpClient *http.Client, log *slog.Logger) *ChromaStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = defaultTenant
	}
	database := cfg.Database
	if database == "" {
		database = defaultDB
	}
	return &ChromaStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		tenant:     tenant,
		database:   database,
		collection: cfg.Collection,
		httpClient: httpClient,
		logger:     log,
	}
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
}

// UpsertEmbedding stores the embedding keyed by reference, provisioning the
// tenant, database and collection on first use.
func (s *ChromaStore) UpsertEmbedding(ctx context.Context, reference string, feedID int64, embedding []float32) error {
	id, err := s.resolveCollection(ctx)
	if err != nil {
		return err
	}

	body := upsertRequest{
		IDs:        []string{reference},
		Embeddings: [][]float32{embedding},
		Metadatas:  []map[string]any{{"reference": reference, "feedId": feedID}},
	}

	status, payload, err := s.do(ctx, http.MethodPost, s.collectionsPath()+"/"+url.PathEscape(id)+"/upsert", body, nil)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		if status == http.StatusNotFound {
			s.forgetCollection(id)
		}
		return &domain.DatabaseOperationError{Operation: "upsert", StatusCode: status, Body: string(payload)}
	}

	s.logger.Debug("embedding upserted", "reference", reference, "feed_id", feedID, "dimensions", len(embedding))
	return nil
}

// resolveCollection returns the cached collection id or provisions the
// hierarchy. Concurrent callers share one provisioning run.
func (s *ChromaStore) resolveCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.collectionID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	// The shared run outlives any single caller; each caller waits on its own ctx.
	ch := s.group.DoChan(s.collection, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisionTimeout)
		defer cancel()

		id, err := s.provisionCollection(pctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.collectionID = id
		s.mu.Unlock()
		return id, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *ChromaStore) forgetCollection(id string) {
	s.mu.Lock()
	if s.collectionID == id {
		s.collectionID = ""
	}
	s.mu.Unlock()
}

func (s *ChromaStore) provisionCollection(ctx context.Context) (string, error) {
	id, found, err := s.getCollectionID(ctx)
	if err != nil || found {
		return id, err
	}

	if err := s.ensureDatabase(ctx); err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	status, payload, err := s.do(ctx, http.MethodPost, s.collectionsPath(), map[string]any{"name": s.collection}, &created)
	if err != nil {
		return "", err
	}
	switch {
	case isSuccess(status) && created.ID != "":
		s.logger.Info("vector collection created", "collection", s.collection, "id", created.ID)
		return created.ID, nil
	case status == http.StatusConflict || isSuccess(status):
		// Created concurrently by another worker.
		id, found, err := s.getCollectionID(ctx)
		if err != nil {
			return "", err
		}
		if !found {
			return "", &domain.DatabaseOperationError{Operation: "get collection", StatusCode: http.StatusNotFound, Body: s.collection}
		}
		return id, nil
	default:
		return "", &domain.DatabaseOperationError{Operation: "create collection", StatusCode: status, Body: string(payload)}
	}
}

func (s *ChromaStore) getCollectionID(ctx context.Context) (string, bool, error) {
	var got struct {
		ID string `json:"id"`
	}
	status, payload, err := s.do(ctx, http.MethodGet, s.collectionsPath()+"/"+url.PathEscape(s.collection), nil, &got)
	if err != nil {
		return "", false, err
	}
	if isMissing(status) {
		return "", false, nil
	}
	if !isSuccess(status) {
		return "", false, &domain.DatabaseOperationError{Operation: "get collection", StatusCode: status, Body: string(payload)}
	}
	return got.ID, got.ID != "", nil
}

func (s *ChromaStore) ensureDatabase(ctx context.Context) error {
	dbPath := s.tenantPath() + "/databases/" + url.PathEscape(s.database)
	exists, err := s.exists(ctx, "get database", dbPath)
	if err != nil || exists {
		return err
	}

	if err := s.ensureTenant(ctx); err != nil {
		return err
	}
	return s.create(ctx, "create database", s.tenantPath()+"/databases", s.database)
}

func (s *ChromaStore) ensureTenant(ctx context.Context) error {
	exists, err := s.exists(ctx, "get tenant", s.tenantPath())
	if err != nil || exists {
		return err
	}
	return s.create(ctx, "create tenant", apiPrefix+"/tenants", s.tenant)
}

func (s *ChromaStore) exists(ctx context.Context, op, path string) (bool, error) {
	status, payload, err := s.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return false, err
	}
	if isMissing(status) {
		return false, nil
	}
	if !isSuccess(status) {
		return false, &domain.DatabaseOperationError{Operation: op, StatusCode: status, Body: string(payload)}
	}
	return true, nil
}

// create posts {"name": name}; a conflict means someone else won the race.
func (s *ChromaStore) create(ctx context.Context, op, path, name string) error {
	status, payload, err := s.do(ctx, http.MethodPost, path, map[string]any{"name": name}, nil)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		s.logger.Debug("vector store level already exists", "operation", op, "name", name)
		return nil
	}
	if !isSuccess(status) {
		return &domain.DatabaseOperationError{Operation: op, StatusCode: status, Body: string(payload)}
	}
	s.logger.Info("vector store level created", "operation", op, "name", name)
	return nil
}

// do sends a JSON request. out is decoded only on success. Transport
// failures are returned as errors; HTTP statuses are left to the caller.
func (s *ChromaStore) do(ctx context.Context, method, path string, in, out any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("vector store %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if isSuccess(resp.StatusCode) && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil, nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, bytes.TrimSpace(payload), nil
}

func (s *ChromaStore) tenantPath() string {
	return apiPrefix + "/tenants/" + url.PathEscape(s.tenant)
}

func (s *ChromaStore) collectionsPath() string {
	return s.tenantPath() + "/databases/" + url.PathEscape(s.database) + "/collections"
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isMissing(status int) bool {
	return status == http.StatusNotFound
}
