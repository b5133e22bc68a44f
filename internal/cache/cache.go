// Package cache keeps the latest parsed payload of each archive in object storage.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/timmy/parlsync/internal/logger"
	"github.com/timmy/parlsync/internal/storage"
	"github.com/timmy/parlsync/internal/unl"
)

// Well-known payload keys.
const (
	KeyMP    = "latest_mp_data"
	KeyBills = "latest_bills_data"
)

// rawPreviewLen is how much of an unregistered table is kept.
const rawPreviewLen = 1000

// VotingKey is the payload key for one electoral period's voting archive.
func VotingKey(period string) string {
	return "latest_voting_data_" + period
}

// Table is one projected table in serializable form.
type Table struct {
	Schema string      `json:"schema"`
	Fields []string    `json:"fields"`
	Rows   [][]*string `json:"rows"`
}

// NewTable captures a projection result.
func NewTable(schema *unl.Schema, records []unl.Record) Table {
	t := Table{Schema: schema.Name, Fields: schema.Fields, Rows: make([][]*string, 0, len(records))}
	for _, rec := range records {
		t.Rows = append(t.Rows, rec.Values())
	}
	return t
}

// Payload is everything parsed out of one archive.
type Payload struct {
	Key       string            `json:"key"`
	Archive   string            `json:"archive"`
	FetchedAt time.Time         `json:"fetched_at"`
	Tables    map[string]Table  `json:"tables"`
	Raw       map[string]string `json:"raw,omitempty"`
}

// AddRaw keeps a preview of a table without a registered schema under
// "<table>_raw".
func (p *Payload) AddRaw(table, text string) {
	if p.Raw == nil {
		p.Raw = make(map[string]string)
	}
	p.Raw[table+"_raw"] = RawPreview(text)
}

// RawPreview truncates text to 1000 characters, marking the cut with "...".
func RawPreview(text string) string {
	runes := []rune(text)
	if len(runes) <= rawPreviewLen {
		return text
	}
	return string(runes[:rawPreviewLen]) + "..."
}

// PayloadCache stores payloads as JSON objects under prefix/<key>.json.
type PayloadCache struct {
	store  storage.ObjectStorage
	prefix string
}

// New creates a PayloadCache. An empty prefix defaults to "cache".
func New(store storage.ObjectStorage, prefix string) *PayloadCache {
	if prefix == "" {
		prefix = "cache"
	}
	return &PayloadCache{store: store, prefix: prefix}
}

func (c *PayloadCache) objectKey(key string) string {
	return path.Join(c.prefix, key+".json")
}

// Put replaces the payload stored under p.Key.
func (c *PayloadCache) Put(ctx context.Context, p *Payload) error {
	if p.Key == "" {
		return errors.New("payload key is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload %s: %w", p.Key, err)
	}

	objKey := c.objectKey(p.Key)
	if err := c.store.Upload(ctx, objKey, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("store payload %s: %w", p.Key, err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"key":          p.Key,
		"location":     c.store.GetURL(objKey),
		"bytes":        len(data),
		"table_count":  len(p.Tables),
		"raw_previews": len(p.Raw),
	}).Info("Payload cached")
	return nil
}

// Get loads a payload; found is false when none is stored.
func (c *PayloadCache) Get(ctx context.Context, key string) (*Payload, bool, error) {
	rc, err := c.store.Download(ctx, c.objectKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load payload %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("load payload %s: %w", key, err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode payload %s: %w", key, err)
	}
	return &p, true, nil
}
