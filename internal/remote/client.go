// Package remote загружает JSON по HTTP и имитирует запись POST/PUT через локальное хранилище.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/idgen"
	"github.com/vladislavdragonenkov/digidine/internal/metrics"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// Тексты уведомлений об ошибках.
const (
	MessageLoadFailed   = "Failed to load data. Please refresh the page."
	MessageSaveFailed   = "Failed to save data."
	MessageUpdateFailed = "Failed to update data."
)

const defaultTimeout = 10 * time.Second

// Record — произвольная JSON-запись симулированного ресурса.
type Record = map[string]any

// Options задаёт зависимости клиента.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *log.Entry
	Metrics    *metrics.StorefrontMetrics
	IDs        *idgen.Generator
}

// Option настраивает Client.
type Option func(*Options)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HTTPClient = client }
}

// WithTimeout задаёт таймаут HTTP-клиента по умолчанию.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.Timeout = timeout }
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics включает учёт ошибок запросов.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithIDGenerator задаёт генератор ID для Post.
func WithIDGenerator(ids *idgen.Generator) Option {
	return func(o *Options) { o.IDs = ids }
}

// Client выполняет GET по сети, а POST/PUT хранит JSON-массивом под ключом, равным URL.
type Client struct {
	http     *http.Client
	store    storage.Store
	notifier domain.Notifier
	ids      *idgen.Generator
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
}

// NewClient создаёт клиент. notifier показывает ошибки пользователю.
func NewClient(store storage.Store, notifier domain.Notifier, options ...Option) *Client {
	opts := Options{Timeout: defaultTimeout}
	for _, option := range options {
		option(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "remote")
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}

	return &Client{
		http:     opts.HTTPClient,
		store:    store,
		notifier: notifier,
		ids:      opts.IDs,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Get загружает url и декодирует JSON-ответ в out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	if err := c.get(ctx, url, out); err != nil {
		c.fail(http.MethodGet, url, err, MessageLoadFailed)
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: HTTP error! status: %d", domain.ErrFetchFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrFetchFailed, err)
	}
	return nil
}

// Post добавляет data с новым id в массив под ключом url и возвращает созданную запись.
func (c *Client) Post(ctx context.Context, url string, data Record) (Record, error) {
	created := make(Record, len(data)+1)
	for k, v := range data {
		created[k] = v
	}

	_, err := c.records(url).Update(ctx, func(records []Record) ([]Record, error) {
		created["id"] = c.ids.NextAfter(highestID(records))
		return append(records, created), nil
	})
	if err != nil {
		c.fail(http.MethodPost, url, err, MessageSaveFailed)
		return nil, err
	}
	return created, nil
}

// Put находит запись с тем же id, что у data, и поверхностно сливает в неё поля data.
func (c *Client) Put(ctx context.Context, url string, data Record) (Record, error) {
	want, err := normalizeID(data["id"])
	if err != nil {
		c.fail(http.MethodPut, url, err, MessageUpdateFailed)
		return nil, err
	}

	var merged Record
	_, err = c.records(url).Update(ctx, func(records []Record) ([]Record, error) {
		for i, record := range records {
			got, err := normalizeID(record["id"])
			if err != nil || !bytes.Equal(got, want) {
				continue
			}
			for k, v := range data {
				record[k] = v
			}
			records[i] = record
			merged = record
			return records, nil
		}
		return nil, domain.ErrRecordNotFound
	})
	if err != nil {
		c.fail(http.MethodPut, url, err, MessageUpdateFailed)
		return nil, err
	}
	return merged, nil
}

func (c *Client) records(url string) *collection.Collection[Record] {
	return collection.New[Record](c.store, url, collection.WithLogger(c.logger))
}

func (c *Client) fail(method, url string, err error, message string) {
	c.logger.WithError(err).WithFields(log.Fields{
		"method": method,
		"url":    url,
	}).Error("API Error")
	c.metrics.RecordFetchFailure(method)
	if c.notifier != nil {
		c.notifier.Error(message)
	}
}

// highestID возвращает наибольший числовой id среди записей. Нечисловые id не учитываются.
func highestID(records []Record) int64 {
	var highest int64
	for _, record := range records {
		switch id := record["id"].(type) {
		case float64:
			highest = max(highest, int64(id))
		case int64:
			highest = max(highest, id)
		case json.Number:
			if n, err := id.Int64(); err == nil {
				highest = max(highest, n)
			}
		}
	}
	return highest
}

// normalizeID приводит id к каноническому JSON, чтобы 7 и 7.0 после декодирования совпадали.
func normalizeID(id any) ([]byte, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("encode id: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}
	return json.Marshal(v)
}
