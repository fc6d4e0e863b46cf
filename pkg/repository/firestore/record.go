package firestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recordDoc is the Firestore document representation of
// model.ActivityRecord. Embedding is stored as firestore.Vector32 for
// FindNearest vector search.
type recordDoc struct {
	ID          int64              `firestore:"id"`
	RunID       string             `firestore:"run_id"`
	Timestamp   time.Time          `firestore:"timestamp"`
	Activity    string             `firestore:"activity"`
	Result      string             `firestore:"result"`
	StartTime   time.Time          `firestore:"start_time"`
	EndTime     time.Time          `firestore:"end_time"`
	DurationSec float64            `firestore:"duration_sec"`
	StateDelta  map[string]int     `firestore:"state_delta"`
	StateAfter  map[string]int     `firestore:"state_after"`
	Embedding   firestore.Vector32 `firestore:"embedding,omitempty"`
	Source      string             `firestore:"source"`
	ParentID    int64              `firestore:"parent_id"`
	HasParent   bool               `firestore:"has_parent"`
}

func toRecordDoc(rec *model.ActivityRecord) *recordDoc {
	doc := &recordDoc{
		ID:          int64(rec.ID),
		RunID:       string(rec.RunID),
		Timestamp:   rec.Timestamp,
		Activity:    rec.Activity,
		Result:      rec.Result,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		DurationSec: rec.DurationSec,
		StateDelta:  rec.StateDelta,
		Source:      rec.Source.String(),
	}
	if rec.StateAfter != nil {
		doc.StateAfter = map[string]int{
			"energy":    rec.StateAfter.Energy,
			"happiness": rec.StateAfter.Happiness,
			"xp":        rec.StateAfter.XP,
		}
	}
	if len(rec.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(rec.Embedding)
	}
	if rec.ParentID != nil {
		doc.ParentID = int64(*rec.ParentID)
		doc.HasParent = true
	}
	return doc
}

func fromRecordDoc(d *recordDoc) *model.ActivityRecord {
	rec := &model.ActivityRecord{
		ID:          types.RecordID(d.ID),
		RunID:       model.RunID(d.RunID),
		Timestamp:   d.Timestamp,
		Activity:    d.Activity,
		Result:      d.Result,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		DurationSec: d.DurationSec,
		StateDelta:  d.StateDelta,
		Source:      types.RecordSource(d.Source),
	}
	if d.StateAfter != nil {
		rec.StateAfter = &model.State{
			Energy:    d.StateAfter["energy"],
			Happiness: d.StateAfter["happiness"],
			XP:        d.StateAfter["xp"],
		}
	}
	if len(d.Embedding) > 0 {
		rec.Embedding = []float32(d.Embedding)
	}
	if d.HasParent {
		pid := types.RecordID(d.ParentID)
		rec.ParentID = &pid
	}
	return rec
}

type snapshotDoc struct {
	Timestamp time.Time `firestore:"timestamp"`
	Energy    int       `firestore:"energy"`
	Happiness int       `firestore:"happiness"`
	XP        int       `firestore:"xp"`
}

type recordRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newRecordRepository(client *firestore.Client) *recordRepository {
	return &recordRepository{client: client}
}

func (r *recordRepository) collection(name string) *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		name = r.collectionPrefix + "_" + name
	}
	return r.client.Collection(name)
}

func (r *recordRepository) recordsCollection() *firestore.CollectionRef {
	return r.collection("activity_logs")
}

func (r *recordRepository) snapshotsCollection() *firestore.CollectionRef {
	return r.collection("state_snapshots")
}

// nextID assigns monotonic record IDs through a counter document so
// that insertion order stays observable across documents.
func (r *recordRepository) nextID(ctx context.Context) (int64, error) {
	counterRef := r.collection("counters").Doc("activity_log_counter")

	var nextID int64
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(counterRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				nextID = 1
				return tx.Set(counterRef, map[string]interface{}{
					"value": nextID,
				})
			}
			return goerr.Wrap(err, "failed to get counter")
		}

		currentValue, err := doc.DataAt("value")
		if err != nil {
			return goerr.Wrap(err, "failed to get counter value")
		}

		val, ok := currentValue.(int64)
		if !ok {
			return goerr.New("counter value is not of type int64", goerr.V("value", currentValue))
		}
		nextID = val + 1
		return tx.Update(counterRef, []firestore.Update{
			{Path: "value", Value: nextID},
		})
	})

	if err != nil {
		return 0, goerr.Wrap(err, "failed to get next record ID")
	}

	return nextID, nil
}

func (r *recordRepository) Append(ctx context.Context, rec *model.ActivityRecord) (*model.ActivityRecord, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	stored := rec.Clone()
	stored.ID = types.RecordID(id)
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	docRef := r.recordsCollection().Doc(fmt.Sprintf("%020d", id))
	if _, err := docRef.Set(ctx, toRecordDoc(stored)); err != nil {
		return nil, goerr.Wrap(err, "failed to append activity record", goerr.V("activity", stored.Activity))
	}

	return stored, nil
}

func (r *recordRepository) AppendSnapshot(ctx context.Context, snap *model.StateSnapshot) error {
	stored := *snap
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	if _, _, err := r.snapshotsCollection().Add(ctx, &snapshotDoc{
		Timestamp: stored.Timestamp,
		Energy:    stored.Energy,
		Happiness: stored.Happiness,
		XP:        stored.XP,
	}); err != nil {
		return goerr.Wrap(err, "failed to append state snapshot")
	}

	return nil
}

func (r *recordRepository) LastTime(ctx context.Context, activity string) (*time.Time, error) {
	iter := r.recordsCollection().
		Where("activity", "==", activity).
		OrderBy("id", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query last activity time", goerr.V("activity", activity))
	}

	var d recordDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal activity record")
	}

	ts := d.Timestamp
	return &ts, nil
}

func (r *recordRepository) CountSince(ctx context.Context, activity string, since time.Time) (int, error) {
	iter := r.recordsCollection().
		Where("activity", "==", activity).
		Where("timestamp", ">=", since).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count activity records", goerr.V("activity", activity))
		}
		count++
	}

	return count, nil
}

func (r *recordRepository) listRecords(ctx context.Context, iter *firestore.DocumentIterator) ([]*model.ActivityRecord, error) {
	defer iter.Stop()

	records := make([]*model.ActivityRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate activity records")
		}

		var d recordDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal activity record")
		}
		records = append(records, fromRecordDoc(&d))
	}

	return records, nil
}

func (r *recordRepository) ListRecent(ctx context.Context, limit int) ([]*model.ActivityRecord, error) {
	iter := r.recordsCollection().
		OrderBy("id", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	return r.listRecords(ctx, iter)
}

func (r *recordRepository) ListRecentByActivity(ctx context.Context, activity string, limit int) ([]*model.ActivityRecord, error) {
	iter := r.recordsCollection().
		Where("activity", "==", activity).
		OrderBy("id", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	return r.listRecords(ctx, iter)
}

func (r *recordRepository) FindSimilar(ctx context.Context, embedding []float32, topN int, opts interfaces.FindSimilarOptions) ([]*model.ScoredRecord, error) {
	query := r.recordsCollection().Query
	if opts.Activity != "" {
		query = query.Where("activity", "==", opts.Activity)
	}
	if opts.Source != "" {
		query = query.Where("source", "==", opts.Source.String())
	}

	vq := query.FindNearest("embedding", firestore.Vector32(embedding), topN,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: "vector_distance",
		})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	scored := make([]*model.ScoredRecord, 0, topN)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search results")
		}

		var d recordDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal activity record from vector search")
		}

		// Cosine distance = 1 - cosine similarity
		score := 0.0
		if dist, ok := doc.Data()["vector_distance"].(float64); ok {
			score = 1 - dist
		}

		scored = append(scored, &model.ScoredRecord{
			Record: fromRecordDoc(&d),
			Score:  score,
		})
	}

	return scored, nil
}

func (r *recordRepository) Summary(ctx context.Context, since time.Time) ([]*model.ActivitySummary, error) {
	iter := r.recordsCollection().
		Where("timestamp", ">=", since).
		Documents(ctx)
	defer iter.Stop()

	byActivity := make(map[string]*model.ActivitySummary)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate activity records for summary")
		}

		var d recordDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal activity record for summary")
		}

		s, ok := byActivity[d.Activity]
		if !ok {
			s = &model.ActivitySummary{Activity: d.Activity}
			byActivity[d.Activity] = s
		}
		s.Count++
		s.TotalDurationSec += d.DurationSec
	}

	result := make([]*model.ActivitySummary, 0, len(byActivity))
	for _, s := range byActivity {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Activity < result[j].Activity
	})

	return result, nil
}

func (r *recordRepository) ListSnapshots(ctx context.Context, limit int) ([]*model.StateSnapshot, error) {
	iter := r.snapshotsCollection().
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	result := make([]*model.StateSnapshot, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate state snapshots")
		}

		var d snapshotDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal state snapshot")
		}
		result = append(result, &model.StateSnapshot{
			Timestamp: d.Timestamp,
			Energy:    d.Energy,
			Happiness: d.Happiness,
			XP:        d.XP,
		})
	}

	return result, nil
}
