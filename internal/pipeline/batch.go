package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ilsgate/internal/customer"
)

// BatchOptions tune ConvertBatch.
type BatchOptions struct {
	// Write sends every converted record to Write. Write failures are kept
	// on the individual results and do not stop the batch.
	Write bool
}

// ConvertBatch converts independent registrations concurrently, at most
// the configured number of workers at a time. Results keep input order. A
// nil entry yields a structural result. The batch stops early only when ctx
// is cancelled or the pipeline itself fails.
func (s *Service) ConvertBatch(ctx context.Context, partnerID string, raws []customer.Raw, opts BatchOptions) ([]*Result, error) {
	effective, err := s.catalog.ForPartner(partnerID)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, raw := range raws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.convert(gctx, partnerID, effective, raw)
			if err != nil {
				return err
			}
			if opts.Write {
				// Kept on res.WriteErr.
				_ = s.Write(res)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	s.logger.Info("batch finished", "partner", partnerLabel(partnerID), "count", len(raws))
	return results, nil
}
