package testutil

import (
	"context"
	"testing"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type RoundRepository interface {
	Create(ctx context.Context, r fl.RoundRecord) error
	Get(ctx context.Context, round uint64) (fl.RoundRecord, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.RoundRecord, uint64, error)
}

type ParameterRepository interface {
	Save(ctx context.Context, p fl.ParameterSet) error
	Get(ctx context.Context, round uint64) (fl.ParameterSet, error)
	Latest(ctx context.Context) (fl.ParameterSet, error)
	Versions(ctx context.Context) ([]uint64, error)
	Delete(ctx context.Context, round uint64) error
}

// RunRoundRepositoryTests exercises a backend that starts out empty.
func RunRoundRepositoryTests(t *testing.T, repo RoundRepository) {
	t.Helper()
	ctx := context.Background()

	records, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, total)

	require.NoError(t, repo.Create(ctx, TestRecord(1)))
	require.NoError(t, repo.Create(ctx, TestRecordFitOnly(2)))
	require.NoError(t, repo.Create(ctx, TestRecord(3)))

	t.Run("create", func(t *testing.T) {
		cases := []struct {
			desc   string
			record fl.RoundRecord
			err    error
		}{
			{
				desc:   "create new round",
				record: TestRecord(4),
			},
			{
				desc:   "create duplicate round",
				record: TestRecord(1),
				err:    errors.ErrEntityExists,
			},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				err := repo.Create(ctx, tc.record)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				assert.NoError(t, err)
			})
		}
	})

	t.Run("get", func(t *testing.T) {
		cases := []struct {
			desc  string
			round uint64
			want  fl.RoundRecord
			err   error
		}{
			{
				desc:  "get evaluated round",
				round: 1,
				want:  TestRecord(1),
			},
			{
				desc:  "get fit only round",
				round: 2,
				want:  TestRecordFitOnly(2),
			},
			{
				desc:  "get missing round",
				round: 99,
				err:   errors.ErrNotFound,
			},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				got, err := repo.Get(ctx, tc.round)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				require.NoError(t, err)
				assertRecord(t, tc.want, got)
			})
		}
	})

	t.Run("list", func(t *testing.T) {
		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			rounds []uint64
		}{
			{
				desc:   "list all",
				offset: 0,
				limit:  10,
				rounds: []uint64{1, 2, 3, 4},
			},
			{
				desc:   "list page",
				offset: 1,
				limit:  2,
				rounds: []uint64{2, 3},
			},
			{
				desc:   "list past the end",
				offset: 10,
				limit:  5,
				rounds: []uint64{},
			},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				records, total, err := repo.List(ctx, tc.offset, tc.limit)
				require.NoError(t, err)
				assert.Equal(t, uint64(4), total)

				got := make([]uint64, len(records))
				for i, r := range records {
					got[i] = r.Round
				}
				assert.Equal(t, tc.rounds, got)
			})
		}
	})
}

// RunParameterRepositoryTests exercises a backend that starts out empty.
func RunParameterRepositoryTests(t *testing.T, repo ParameterRepository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Latest(ctx)
	require.ErrorIs(t, err, errors.ErrNotFound)

	versions, err := repo.Versions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)

	for _, round := range []uint64{2, 0, 10, 1} {
		require.NoError(t, repo.Save(ctx, TestParameters(round)))
	}

	t.Run("save duplicate", func(t *testing.T) {
		err := repo.Save(ctx, TestParameters(2))
		assert.ErrorIs(t, err, errors.ErrEntityExists)
	})

	t.Run("get", func(t *testing.T) {
		cases := []struct {
			desc  string
			round uint64
			err   error
		}{
			{desc: "get initial version", round: 0},
			{desc: "get published version", round: 10},
			{desc: "get missing version", round: 5, err: errors.ErrNotFound},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				got, err := repo.Get(ctx, tc.round)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				require.NoError(t, err)
				assert.True(t, TestParameters(tc.round).Equal(got), "parameters must round-trip exactly")
			})
		}
	})

	t.Run("latest", func(t *testing.T) {
		got, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), got.Round)
		assert.True(t, TestParameters(10).Equal(got))
	})

	t.Run("versions", func(t *testing.T) {
		versions, err := repo.Versions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 1, 2, 10}, versions)
	})

	t.Run("delete", func(t *testing.T) {
		cases := []struct {
			desc     string
			round    uint64
			err      error
			versions []uint64
		}{
			{desc: "delete latest version", round: 10, versions: []uint64{0, 1, 2}},
			{desc: "delete missing version", round: 10, err: errors.ErrNotFound, versions: []uint64{0, 1, 2}},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				err := repo.Delete(ctx, tc.round)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)
				} else {
					require.NoError(t, err)
				}

				versions, err := repo.Versions(ctx)
				require.NoError(t, err)
				assert.Equal(t, tc.versions, versions)
			})
		}

		latest, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), latest.Round)

		require.NoError(t, repo.Save(ctx, TestParameters(10)), "a deleted version can be saved again")
	})
}

func assertRecord(t *testing.T, want, got fl.RoundRecord) {
	t.Helper()

	assert.Equal(t, want.Round, got.Round)
	assert.Equal(t, want.Attempts, got.Attempts)
	assert.Equal(t, want.Fit, got.Fit)
	assert.Equal(t, want.Evaluate, got.Evaluate)
	assert.Equal(t, want.FitMetrics, got.FitMetrics)
	assert.Equal(t, want.Loss, got.Loss)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, want.Duration, got.Duration)
}
