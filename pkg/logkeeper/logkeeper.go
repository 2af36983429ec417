// Package logkeeper moves access log entries from Kafka into Elasticsearch.
package logkeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"postboard/pkg/logger"
	"postboard/pkg/models"
)

// Reader is the part of *kafka.Reader the keeper consumes from.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Indexer stores one JSON document under the given id.
type Indexer interface {
	Index(ctx context.Context, index, docID string, body []byte) error
}

// ESIndexer indexes documents with an Elasticsearch client.
type ESIndexer struct {
	es *elasticsearch.Client
}

func NewESIndexer(es *elasticsearch.Client) *ESIndexer {
	return &ESIndexer{es: es}
}

func (i *ESIndexer) Index(ctx context.Context, index, docID string, body []byte) error {
	res, err := i.es.Index(
		index,
		bytes.NewReader(body),
		i.es.Index.WithDocumentID(docID),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch returned %s", res.Status())
	}
	return nil
}

// readRetryDelay is the pause after a failed read from Kafka.
const readRetryDelay = time.Second

type Keeper struct {
	idx        Indexer
	index      string
	numWorkers int
	retryDelay time.Duration
}

func New(idx Indexer, index string, numWorkers int) *Keeper {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Keeper{idx: idx, index: index, numWorkers: numWorkers, retryDelay: readRetryDelay}
}

// DocumentID is the id a log entry is indexed under.
func DocumentID(entry models.LogEntry) string {
	return entry.Service + entry.RequestID
}

// Handle indexes a single Kafka message holding a log entry.
func (k *Keeper) Handle(ctx context.Context, msg kafka.Message) error {
	var entry models.LogEntry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		return fmt.Errorf("failed to unmarshal log entry: %w", err)
	}
	if err := k.idx.Index(ctx, k.index, DocumentID(entry), msg.Value); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	log.Infof("[logkeeper][%s] log entry indexed", logger.Shorten(entry.RequestID))

	return nil
}

// Run reads messages until ctx is cancelled and hands them to a pool of
// workers.
func (k *Keeper) Run(ctx context.Context, r Reader) error {
	jobs := make(chan kafka.Message, k.numWorkers*5) // buffer is needed to increase throughput
	var wg sync.WaitGroup
	wg.Add(k.numWorkers)
	for workerID := 0; workerID < k.numWorkers; workerID++ {
		go func(id int) {
			defer wg.Done()
			k.worker(ctx, jobs, id)
		}(workerID)
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	log.Info("[logkeeper] accepting logs...")
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Errorf("[logkeeper] failed to read message from Kafka: %v", err)
			select {
			case <-time.After(k.retryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		log.Debugf("[logkeeper] received message: %s", string(msg.Value))

		select {
		case jobs <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (k *Keeper) worker(ctx context.Context, jobs <-chan kafka.Message, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Infof("[logkeeper][workerID:%d] context cancelled, exiting worker", workerID)
			return

		case msg, ok := <-jobs:
			if !ok {
				log.Infof("[logkeeper][workerID:%d] jobs channel closed, exiting worker", workerID)
				return
			}
			if err := k.Handle(ctx, msg); err != nil {
				log.Errorf("[logkeeper][workerID:%d] %v", workerID, err)
			}
		}
	}
}
