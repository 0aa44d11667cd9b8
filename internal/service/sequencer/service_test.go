package sequencer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/clinic-api/internal/repository"
	"github.com/medicore/clinic-api/pkg/errors"
	"github.com/medicore/clinic-api/pkg/identifier"
)

// fakeSequenceRepo mimics the atomic counter upsert with a mutex.
type fakeSequenceRepo struct {
	mu       sync.Mutex
	counters map[repository.SequenceKey]int
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{counters: make(map[repository.SequenceKey]int)}
}

func (r *fakeSequenceRepo) NextValue(ctx context.Context, key repository.SequenceKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
	return r.counters[key], nil
}

func newTestService(repo repository.SequenceRepository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestNextPatientID(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	id, err := svc.NextPatientID(context.Background(), "HC", "male")
	require.NoError(t, err)

	assert.Len(t, id, identifier.Length)
	assert.True(t, svc.Validate(id))
	assert.Equal(t, "HCM263", id[:6])
	assert.True(t, strings.HasSuffix(id, "00001"))
}

func TestNextPatientIDSequencesAreGapless(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	for i := 1; i <= 5; i++ {
		id, err := svc.NextPatientID(context.Background(), "HC", "female")
		require.NoError(t, err)
		c, err := svc.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, i, c.Sequence)
	}
}

func TestNextStaffID(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	id, err := svc.NextStaffID(context.Background(), "HC", "doctor")
	require.NoError(t, err)
	assert.Equal(t, byte('D'), id[2])
	assert.True(t, svc.Validate(id))

	// Unknown role falls back to the generic category.
	id, err = svc.NextStaffID(context.Background(), "HC", "astronaut")
	require.NoError(t, err)
	assert.Equal(t, byte('X'), id[2])
	assert.True(t, svc.Validate(id))
}

func TestCountersAreIndependentPerCategory(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	male, err := svc.NextPatientID(context.Background(), "HC", "male")
	require.NoError(t, err)
	female, err := svc.NextPatientID(context.Background(), "HC", "female")
	require.NoError(t, err)

	mc, _ := svc.Parse(male)
	fc, _ := svc.Parse(female)
	assert.Equal(t, 1, mc.Sequence)
	assert.Equal(t, 1, fc.Sequence)
}

func TestConcurrentGenerationYieldsDistinctIDs(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.NextPatientID(context.Background(), "HC", "male")
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate identifier %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestHospitalCodeValidation(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	_, err := svc.NextPatientID(context.Background(), "ABC", "male")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestNextAppointmentNumber(t *testing.T) {
	svc := newTestService(newFakeSequenceRepo())

	apt := svc.NextAppointmentNumber(false)
	assert.Regexp(t, `^APT-20260315-\d{4}$`, apt)

	wlk := svc.NextAppointmentNumber(true)
	assert.Regexp(t, `^WLK-20260315-\d{4}$`, wlk)
}
