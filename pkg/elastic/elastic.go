package elastic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samogod/patentvae/pkg/config"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

const DefaultIndex = "patentvae_params"

type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

func FromConfig(cfg config.Elasticsearch) Config {
	return Config{
		URL:      cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Index:    cfg.Index,
	}
}

type Client struct {
	es    *es8.Client
	index string
}

// Document is the indexed form of one published run.
type Document struct {
	Run         string        `json:"run"`
	Fingerprint string        `json:"fingerprint"`
	Params      config.Params `json:"params"`
	Timestamp   time.Time     `json:"@timestamp"`
}

// runNameRegexp keeps run names usable as a document ID inside a request path.
var runNameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

func ValidateRunName(run string) error {
	if strings.TrimSpace(run) == "" {
		return errors.New("run name is required")
	}
	if !runNameRegexp.MatchString(run) {
		return fmt.Errorf("invalid run name %q: use letters, digits, '.', '_' or '-'", run)
	}
	return nil
}

func NewDocument(run string, params config.Params, now time.Time) (Document, error) {
	if err := ValidateRunName(run); err != nil {
		return Document{}, err
	}
	fingerprint, err := params.Fingerprint()
	if err != nil {
		return Document{}, err
	}
	return Document{
		Run:         run,
		Fingerprint: fingerprint,
		Params:      params,
		Timestamp:   now.UTC(),
	}, nil
}

// ID keeps one document per distinct record of a run.
func (d Document) ID() string {
	return d.Run + "-" + d.Fingerprint[:12]
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch URL is required")
	}
	index := cfg.Index
	if strings.TrimSpace(index) == "" {
		index = DefaultIndex
	}

	es, err := es8.NewClient(es8.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	res.Body.Close()

	return &Client{es: es, index: index}, nil
}

func (c *Client) Index() string {
	return c.index
}

func (c *Client) IndexDocument(ctx context.Context, doc Document) error {
	if err := ValidateRunName(doc.Run); err != nil {
		return err
	}
	if len(doc.Fingerprint) < 12 {
		return fmt.Errorf("document for run %s has no fingerprint", doc.Run)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	res, err := c.es.Index(c.index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID()),
	)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 500))
		return fmt.Errorf("index request rejected: %s: %s", res.Status(), strings.TrimSpace(string(msg)))
	}
	return nil
}

// IndexJSONLinesFile bulk-indexes every non-empty line of filename as one
// document and returns how many were indexed.
func (c *Client) IndexJSONLinesFile(ctx context.Context, filename string) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open jsonl file: %w", err)
	}
	defer f.Close()

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      c.index,
		NumWorkers: 4,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var failed atomic.Int64
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			bi.Close(ctx)
			return 0, fmt.Errorf("line %d: %w", lineNo, err)
		}

		item := esutil.BulkIndexerItem{
			Action: "index",
			Body:   strings.NewReader(line),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, resp esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
			},
		}
		if doc.Run != "" {
			if err := ValidateRunName(doc.Run); err != nil {
				bi.Close(ctx)
				return 0, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if len(doc.Fingerprint) >= 12 {
				item.DocumentID = doc.ID()
			}
		}
		if err := bi.Add(ctx, item); err != nil {
			bi.Close(ctx)
			return 0, fmt.Errorf("bulk add failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		bi.Close(ctx)
		return 0, fmt.Errorf("scanner error: %w", err)
	}

	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("bulk indexer close failed: %w", err)
	}

	stats := bi.Stats()
	if n := failed.Load(); n > 0 {
		return int(stats.NumIndexed), fmt.Errorf("%d documents failed to index", n)
	}
	return int(stats.NumIndexed), nil
}

// WriteJSONLines appends docs to path, one JSON document per line.
func WriteJSONLines(path string, docs ...Document) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	enc := json.NewEncoder(f)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
	}
	return nil
}
