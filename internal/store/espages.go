package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/logger"
)

const defaultPageIndex = "prospector-pages"

// ESPageStore persists crawled pages as Elasticsearch documents, one
// document per page keyed by the page ID.
type ESPageStore struct {
	client *elasticsearch.Client
	index  string
	log    logger.Interface
}

// ESConfig holds connection settings for the Elasticsearch page store.
type ESConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
}

// NewESPageStore connects to Elasticsearch and ensures the page index exists.
func NewESPageStore(ctx context.Context, cfg ESConfig, log logger.Interface) (*ESPageStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = defaultPageIndex
	}

	s := &ESPageStore{client: client, index: index, log: log}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ESPageStore) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index exists check: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := `{
		"mappings": {
			"properties": {
				"url":          {"type": "keyword"},
				"domain":       {"type": "keyword"},
				"title":        {"type": "text"},
				"content":      {"type": "text"},
				"content_hash": {"type": "keyword"},
				"depth":        {"type": "integer"},
				"crawled_at":   {"type": "date"}
			}
		}
	}`
	create, err := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer create.Body.Close()
	if create.IsError() {
		body, _ := io.ReadAll(create.Body)
		return fmt.Errorf("create index %s: %s", s.index, string(body))
	}
	s.log.Info("created page index", "index", s.index)
	return nil
}

// Index implements PageStore.
func (s *ESPageStore) Index(ctx context.Context, page *domain.PageRecord) error {
	doc, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", page.URL, err)
	}
	res, err := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: page.ID,
		Body:       bytes.NewReader(doc),
	}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index page %s: %w", page.URL, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index page %s: %s", page.URL, string(body))
	}
	return nil
}

// CountByDomain implements PageStore.
func (s *ESPageStore) CountByDomain(ctx context.Context, domainName string) (int, error) {
	query := fmt.Sprintf(`{"query":{"term":{"domain":%q}}}`, domainName)
	res, err := esapi.CountRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(query),
	}.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("count pages for %s: %w", domainName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count pages for %s: %s", domainName, string(body))
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

// Close implements PageStore.
func (s *ESPageStore) Close() error { return nil }
