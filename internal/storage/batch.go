package storage

import (
	"sync"

	"go.uber.org/zap"
)

// BatchWriter accumulates PageRecords and flushes them to the store in
// one transaction when the batch fills. A failed commit is counted and
// logged but never aborts the crawl.
type BatchWriter struct {
	db        *Database
	batchSize int
	logger    *zap.Logger

	mu            sync.Mutex
	pending       []*PageRecord
	flushed       int
	failedBatches int
}

// NewBatchWriter creates a writer flushing every batchSize records.
func NewBatchWriter(db *Database, batchSize int, logger *zap.Logger) *BatchWriter {
	if batchSize < 1 {
		batchSize = 100
	}
	return &BatchWriter{
		db:        db,
		batchSize: batchSize,
		logger:    logger,
		pending:   make([]*PageRecord, 0, batchSize),
	}
}

// Add appends a record and flushes when the batch is full.
func (w *BatchWriter) Add(record *PageRecord) {
	w.mu.Lock()
	w.pending = append(w.pending, record)
	full := len(w.pending) >= w.batchSize
	var batch []*PageRecord
	if full {
		batch = w.take()
	}
	w.mu.Unlock()

	if full {
		w.flush(batch)
	}
}

// Flush writes out any partially filled batch. Called on shutdown.
func (w *BatchWriter) Flush() {
	w.mu.Lock()
	batch := w.take()
	w.mu.Unlock()

	if len(batch) > 0 {
		w.flush(batch)
	}
}

// take swaps the pending slice out. Caller holds the lock.
func (w *BatchWriter) take() []*PageRecord {
	batch := w.pending
	w.pending = make([]*PageRecord, 0, w.batchSize)
	return batch
}

func (w *BatchWriter) flush(batch []*PageRecord) {
	if err := w.db.UpsertPages(batch); err != nil {
		w.mu.Lock()
		w.failedBatches++
		w.mu.Unlock()
		w.logger.Error("batch flush failed",
			zap.Int("records", len(batch)),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	w.flushed += len(batch)
	w.mu.Unlock()
}

// Flushed returns the number of records committed so far.
func (w *BatchWriter) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}

// FailedBatches returns how many batch commits failed.
func (w *BatchWriter) FailedBatches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failedBatches
}
