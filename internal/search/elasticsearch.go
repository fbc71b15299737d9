package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient mirrors sync-session log entries into Elasticsearch so
// operators can search audit trails across runs.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexLogEntry indexes one sync log entry alongside its session
// metadata. The database remains the source of truth; this copy is a
// best-effort search mirror.
func (c *ElasticClient) IndexLogEntry(ctx context.Context, session *models.SyncSession, entry *models.SyncLogEntry) error {
	doc := map[string]interface{}{
		"session_id": session.ID.String(),
		"run_type":   session.RunType,
		"started_at": session.StartedAt,
		"created_at": entry.CreatedAt,
		"level":      entry.Level,
		"action":     entry.Action,
		"message":    entry.Message,
	}
	if entry.OrderID != nil {
		doc["order_id"] = *entry.OrderID
	}
	if entry.ShipmentID != nil {
		doc["shipment_id"] = *entry.ShipmentID
	}
	if len(entry.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(entry.Details, &details); err == nil {
			doc["details"] = details
		}
	}

	docJson, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal log entry document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%s-%d", session.ID.String(), entry.ID),
		Body:       bytes.NewReader(docJson),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}
	return nil
}

// SearchLogEntries queries the mirrored audit trail.
func (c *ElasticClient) SearchLogEntries(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}
	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, source)
	}

	log.Debug().Int("hits", len(docs)).Msg("Searched sync log entries")
	return docs, nil
}
