package resultstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/natsbus"
)

// Bucket is the JetStream KV bucket holding run results.
const Bucket = "tradeline_results"

// Store persists run results in a JetStream KV bucket, keyed by run ID.
// Results are write-once snapshots, so puts are idempotent and there is no
// version bookkeeping.
type Store struct {
	bucket jetstream.KeyValue
}

// NewStore creates the results bucket if needed and returns a store over it.
func NewStore(ctx context.Context, transport *natsbus.Transport) (*Store, error) {
	if transport == nil {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "resultstore", "NewStore", "transport check")
	}

	bucket, err := transport.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      Bucket,
		Description: "Completed simulation run results",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "resultstore", "NewStore", "create KV bucket")
	}

	return &Store{bucket: bucket}, nil
}

// Put persists a result under its run ID. Re-putting the same run ID
// overwrites, so a retried persistence pass cannot fail on its own earlier
// success.
func (s *Store) Put(ctx context.Context, result Result) error {
	if err := result.Validate(); err != nil {
		return errors.Wrap(err, "resultstore", "Put", "result validation")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errors.WrapFatal(err, "resultstore", "Put", "marshal result")
	}

	if _, err := s.bucket.Put(ctx, result.RunID, data); err != nil {
		return errors.WrapTransient(err, "resultstore", "Put", "put to KV")
	}
	return nil
}

// Get retrieves the result for a run. A missing run fails with
// errors.ErrResultNotFound.
func (s *Store) Get(ctx context.Context, runID string) (Result, error) {
	if runID == "" {
		return Result{}, errors.WrapInvalid(
			fmt.Errorf("run ID cannot be empty"), "resultstore", "Get", "identity check")
	}

	entry, err := s.bucket.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Result{}, errors.WrapInvalid(
				errors.ErrResultNotFound, "resultstore", "Get",
				fmt.Sprintf("result %s", runID))
		}
		return Result{}, errors.WrapTransient(err, "resultstore", "Get", "get from KV")
	}

	var result Result
	if err := json.Unmarshal(entry.Value(), &result); err != nil {
		return Result{}, errors.WrapFatal(err, "resultstore", "Get", "unmarshal result")
	}
	return result, nil
}

// List retrieves every stored result. An empty bucket lists empty.
func (s *Store) List(ctx context.Context) ([]Result, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []Result{}, nil
		}
		return nil, errors.WrapTransient(err, "resultstore", "List", "list KV keys")
	}

	results := make([]Result, 0, len(keys))
	for _, key := range keys {
		result, err := s.Get(ctx, key)
		if err != nil {
			return nil, errors.WrapTransient(err, "resultstore", "List",
				fmt.Sprintf("get result %s", key))
		}
		results = append(results, result)
	}
	return results, nil
}

// Delete removes a run's result. Deleting a missing run is not an error;
// the KV delete is a tombstone write.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("run ID cannot be empty"), "resultstore", "Delete", "identity check")
	}
	if err := s.bucket.Delete(ctx, runID); err != nil {
		return errors.WrapTransient(err, "resultstore", "Delete", "delete from KV")
	}
	return nil
}
