package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/parish"
)

// Outcome is the result of reconciling one record.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
	OutcomeFailed
)

// Tally counts reconcile outcomes. Abandoned records were never attempted
// because the run deadline passed.
type Tally struct {
	Imported  int
	Updated   int
	Failed    int
	Abandoned int
}

// defaultBatchSize is the number of updates sent per BatchUpdate call.
const defaultBatchSize = 50

// Reconciler performs the create-or-merge decision against a store.
type Reconciler struct {
	store        parish.Store
	writeTimeout time.Duration
	now          func() time.Time
}

// NewReconciler returns a Reconciler. writeTimeout bounds each store call
// once it has started, even after the run deadline.
func NewReconciler(store parish.Store, writeTimeout time.Duration) *Reconciler {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Reconciler{store: store, writeTimeout: writeTimeout, now: time.Now}
}

// Apply reconciles records one at a time in order. Records not yet started
// when ctx is done are counted as abandoned.
func (r *Reconciler) Apply(ctx context.Context, records []*parish.Record) Tally {
	var t Tally
	for i, rec := range records {
		if ctx.Err() != nil {
			t.Abandoned += len(records) - i
			break
		}
		switch r.One(ctx, rec) {
		case OutcomeCreated:
			t.Imported++
		case OutcomeUpdated:
			t.Updated++
		default:
			t.Failed++
		}
	}
	return t
}

// One reconciles a single record: create when no record exists for its
// (ImportSource, SourceID), otherwise merge into the existing one.
func (r *Reconciler) One(ctx context.Context, rec *parish.Record) Outcome {
	log := zap.L().With(
		zap.String("source", string(rec.ImportSource)),
		zap.String("source_id", rec.SourceID),
		zap.String("name", rec.Name),
	)

	wctx, cancel := r.writeContext(ctx)
	defer cancel()

	existing, err := r.store.FindBySourceID(wctx, rec.ImportSource, rec.SourceID)
	if err != nil {
		log.Error("store lookup failed", zap.Error(err))
		return OutcomeFailed
	}

	if existing == nil {
		rec.Normalize()
		id, err := r.store.Create(wctx, rec)
		if err != nil {
			log.Error("store create failed", zap.Error(err))
			return OutcomeFailed
		}
		rec.ID = id
		log.Debug("parish created", zap.String("id", id))
		return OutcomeCreated
	}

	merged := parish.Merge(existing, rec, r.now())
	if err := r.store.Update(wctx, merged); err != nil {
		log.Error("store update failed", zap.String("id", existing.ID), zap.Error(err))
		return OutcomeFailed
	}
	log.Debug("parish updated", zap.String("id", existing.ID))
	return OutcomeUpdated
}

// ApplyBatched creates missing records one by one and sends merges through
// BatchUpdate in groups of batchSize. A failed batch counts every record in
// it as failed.
func (r *Reconciler) ApplyBatched(ctx context.Context, records []*parish.Record, batchSize int) Tally {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	log := zap.L().With(zap.String("component", "reconcile"))

	var (
		t       Tally
		pending []*parish.Record
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		wctx, cancel := r.writeContext(ctx)
		defer cancel()
		if err := r.store.BatchUpdate(wctx, pending); err != nil {
			log.Error("batch update failed", zap.Int("records", len(pending)), zap.Error(err))
			t.Failed += len(pending)
		} else {
			t.Updated += len(pending)
		}
		pending = pending[:0]
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			t.Abandoned += len(records) - i
			break
		}
		merged, created, err := r.createOrMerge(ctx, rec)
		switch {
		case err != nil:
			log.Error("reconcile failed",
				zap.String("source_id", rec.SourceID),
				zap.String("name", rec.Name),
				zap.Error(err),
			)
			t.Failed++
		case created:
			t.Imported++
		default:
			pending = append(pending, merged)
			if len(pending) >= batchSize {
				flush()
			}
		}
	}
	flush()
	return t
}

// createOrMerge creates rec when absent and returns created=true, otherwise
// returns the merged record for a later batch update.
func (r *Reconciler) createOrMerge(ctx context.Context, rec *parish.Record) (*parish.Record, bool, error) {
	wctx, cancel := r.writeContext(ctx)
	defer cancel()

	existing, err := r.store.FindBySourceID(wctx, rec.ImportSource, rec.SourceID)
	if err != nil {
		return nil, false, eris.Wrap(err, "reconcile: find by source id")
	}
	if existing == nil {
		rec.Normalize()
		id, err := r.store.Create(wctx, rec)
		if err != nil {
			return nil, false, eris.Wrap(err, "reconcile: create")
		}
		rec.ID = id
		return rec, true, nil
	}
	return parish.Merge(existing, rec, r.now()), false, nil
}

// writeContext detaches a started write from the run deadline so it can
// finish, bounded by writeTimeout.
func (r *Reconciler) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
}
