package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/goalmatch/internal/config"
	gormdb "github.com/thebtf/goalmatch/internal/db/gorm"
	"github.com/thebtf/goalmatch/internal/similarity"
	"github.com/thebtf/goalmatch/pkg/models"
)

type fakeLister struct {
	recipients []gormdb.RecipientGoals
	err        error
}

func (f *fakeLister) FetchAllRecipientGoals(_ context.Context) ([]gormdb.RecipientGoals, error) {
	return f.recipients, f.err
}

// pairKey identifies an unordered goal pair within a recipient.
type pairKey struct {
	recipientID int64
	goal1ID     int64
	goal2ID     int64
}

type fakeSink struct {
	rows      map[pairKey]float64
	failPairs map[pairKey]bool
	inserts   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{rows: make(map[pairKey]float64), failPairs: make(map[pairKey]bool)}
}

func (f *fakeSink) key(recipientID, goal1ID, goal2ID int64) pairKey {
	if goal1ID > goal2ID {
		goal1ID, goal2ID = goal2ID, goal1ID
	}
	return pairKey{recipientID, goal1ID, goal2ID}
}

func (f *fakeSink) InsertScoreIfAbsent(_ context.Context, recipientID, goal1ID, goal2ID int64, score float64, _ time.Time) (bool, error) {
	k := f.key(recipientID, goal1ID, goal2ID)
	if f.failPairs[k] {
		return false, errors.New("insert failed")
	}
	f.inserts++
	if _, ok := f.rows[k]; ok {
		return false, nil
	}
	f.rows[k] = score
	return true, nil
}

func (f *fakeSink) CountScores(_ context.Context, recipientID int64) (int64, error) {
	var n int64
	for k := range f.rows {
		if k.recipientID == recipientID {
			n++
		}
	}
	return n, nil
}

type fakeLocker struct {
	held     bool
	acquired int
}

func (f *fakeLocker) AcquireAdvisoryLock(_ context.Context, _ int64) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	f.acquired++
	f.held = true
	return func() { f.held = false }, true, nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no fake vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// SweepSuite is a test suite for the cache sweep.
type SweepSuite struct {
	suite.Suite
	lister *fakeLister
	sink   *fakeSink
	locker *fakeLocker
	svc    *Service
	ctx    context.Context
}

func (s *SweepSuite) SetupTest() {
	cfg := config.Default()
	config.Set(cfg)

	s.lister = &fakeLister{recipients: []gormdb.RecipientGoals{
		{RecipientID: 1, Goals: []models.Goal{
			{ID: 1, Name: "buy milk", GrantID: 10},
			{ID: 2, Name: "get milk", GrantID: 10},
			{ID: 3, Name: "learn piano", GrantID: 11},
		}},
		{RecipientID: 2, Goals: []models.Goal{
			{ID: 4, Name: "buy milk", GrantID: 20},
		}},
	}}
	s.sink = newFakeSink()
	s.locker = &fakeLocker{}

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"buy milk":    {1, 0, 0},
		"get milk":    {1, 1, 0},
		"learn piano": {1, 2, 0},
	}}
	engine := similarity.NewEngine(embedder, zerolog.Nop())
	s.svc = NewService(s.lister, s.sink, s.locker, engine, cfg, zerolog.Nop())
	s.ctx = context.Background()
}

func TestSweepSuite(t *testing.T) {
	suite.Run(t, new(SweepSuite))
}

func (s *SweepSuite) TestRunSweep_CachesAllPositivePairs() {
	s.svc.runSweep(s.ctx)

	// All three goal vectors of recipient 1 have pairwise similarity
	// above zero, so all three pairs are cached. Recipient 2 has a
	// single goal and produces nothing.
	s.Len(s.sink.rows, 3)
	for k, score := range s.sink.rows {
		s.Equal(int64(1), k.recipientID)
		s.Less(k.goal1ID, k.goal2ID, "pairs must be stored in normalized order")
		s.Greater(score, 0.0)
	}
}

func (s *SweepSuite) TestRunSweep_SecondRunSkipsCachedRecipients() {
	s.svc.runSweep(s.ctx)
	firstInserts := s.sink.inserts

	s.svc.runSweep(s.ctx)

	// The second run finds every expected pair cached and performs no
	// further inserts.
	s.Equal(firstInserts, s.sink.inserts)
	s.Len(s.sink.rows, 3)
}

func (s *SweepSuite) TestRunSweep_LockContentionSkipsRun() {
	s.locker.held = true

	s.svc.runSweep(s.ctx)

	s.Empty(s.sink.rows)
	s.Zero(s.locker.acquired)
}

func (s *SweepSuite) TestRunSweep_ReleasesLock() {
	s.svc.runSweep(s.ctx)
	s.False(s.locker.held, "lock must be released after the run")
	s.Equal(1, s.locker.acquired)
}

func (s *SweepSuite) TestRunSweep_InsertFailureContinues() {
	s.sink.failPairs[pairKey{1, 1, 2}] = true

	s.svc.runSweep(s.ctx)

	// The failed pair is absent but the other pairs still landed.
	s.Len(s.sink.rows, 2)

	stats := s.svc.Stats()
	s.Equal(int64(1), stats["total_failed"])
}

func (s *SweepSuite) TestRunSweep_FetchFailureAbortsRun() {
	s.lister.err = errors.New("db offline")

	s.svc.runSweep(s.ctx)

	s.Empty(s.sink.rows)
	s.False(s.locker.held)
}

func (s *SweepSuite) TestExpectedPairs() {
	s.Equal(int64(0), expectedPairs(0, 500))
	s.Equal(int64(0), expectedPairs(1, 500))
	s.Equal(int64(1), expectedPairs(2, 500))
	s.Equal(int64(3), expectedPairs(3, 500))

	// Batching caps pair counts: 5 goals in batches of 2 give batches
	// of 2, 2, 1 and only one pair per full batch.
	s.Equal(int64(2), expectedPairs(5, 2))
}
