package generator

import (
	"context"
	"fmt"

	"transfer-stats/internal/storage"
)

// DefaultBatchSize is the number of transfers written per InsertBulk call by Fill.
const DefaultBatchSize = 5_000

// Fill generates count transfers and writes them to sink in batches.
// It returns the number written; a failed batch stops the fill.
func Fill(ctx context.Context, gen Generator, sink storage.TransferSink, count, batchSize int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: negative count %d", ErrInvalidConfig, count)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	written := 0
	for written < count {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := min(batchSize, count-written)
		batch, err := gen.Generate(n)
		if err != nil {
			return written, fmt.Errorf("generate transfers: %w", err)
		}
		if err := sink.InsertBulk(ctx, batch); err != nil {
			return written, fmt.Errorf("write batch at %d: %w", written, err)
		}
		written += n
	}
	return written, nil
}
