package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

// AddJob is one queued "rag/manage add" request. The platform adapter is
// session-cookie authenticated per request, so the referer/JSESSIONID pair
// that authorizes the original HTTP call travels with the job: a consumer
// running outside that request has no other way to reach the document
// platform on the caller's behalf.
type AddJob struct {
	DocumentID string `json:"document_id"`
	Referer    string `json:"referer"`
	JSessionID string `json:"jsession_id"`
}

// Queue publishes AddJob messages to a Kafka topic; Add handlers can
// enqueue instead of running the indexing pipeline inline, trading request
// latency for asynchronous processing by a separate consumer pool.
type Queue struct {
	writer *kafka.Writer
}

// QueueConfig addresses the Kafka cluster backing the async indexing queue.
type QueueConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewQueue builds a Queue bound to cfg.Topic.
func NewQueue(cfg QueueConfig) *Queue {
	return &Queue{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// Enqueue publishes one AddJob for documentID, carrying the session
// credentials the consumer needs to reach the document platform later.
func (q *Queue) Enqueue(ctx context.Context, documentID, referer, jsessionID string) error {
	payload, err := json.Marshal(AddJob{DocumentID: documentID, Referer: referer, JSessionID: jsessionID})
	if err != nil {
		return fmt.Errorf("marshal add job: %w", err)
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(documentID),
		Value: payload,
	})
}

// Close releases the writer's connections.
func (q *Queue) Close() error {
	return q.writer.Close()
}

// IndexerFactory builds an Indexer scoped to one job's session credentials
// (the platform adapter has no process-wide client to reuse across jobs).
type IndexerFactory func(job AddJob) (*Indexer, error)

// Consumer drains AddJob messages and drives an Indexer's Add for each,
// the same path the synchronous HTTP handler calls.
type Consumer struct {
	reader     *kafka.Reader
	newIndexer IndexerFactory
}

// NewConsumer builds a Consumer bound to cfg's topic and consumer group,
// calling newIndexer(job).Add for every AddJob it reads.
func NewConsumer(cfg QueueConfig, newIndexer IndexerFactory) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		}),
		newIndexer: newIndexer,
	}
}

// Run processes messages until ctx is cancelled or the reader errors.
// onResult, if non-nil, receives each job's outcome for logging/metrics.
func (c *Consumer) Run(ctx context.Context, onResult func(AddJob, AddResult, error)) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		var job AddJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			if onResult != nil {
				onResult(job, AddResult{}, fmt.Errorf("decode add job: %w", err))
			}
			continue
		}
		indexer, err := c.newIndexer(job)
		if err != nil {
			if onResult != nil {
				onResult(job, AddResult{}, fmt.Errorf("build indexer: %w", err))
			}
			continue
		}
		result, err := indexer.Add(ctx, job.DocumentID)
		if onResult != nil {
			onResult(job, result, err)
		}
	}
}

// Close releases the reader's connections.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
