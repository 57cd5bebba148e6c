package chartstore

import (
	"context"
	"testing"
	"time"

	"platscore-backend/lib/chartid"
	"platscore-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) Store {
	database, err := Open(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestClosestTitle(t *testing.T) {
	known := []string{"Opfer", "Titania", "Singularity (Arcaea)"}
	require.Equal(t, "Titania", closestTitle("Titanla", known))
	require.Equal(t, "Singularity (Arcaea)", closestTitle("Singularity", known))
	require.Equal(t, "", closestTitle("anything", nil))
}

func TestStore(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:chartstore")
	defer cleanup()

	store := testStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	catalog := []ChartRecord{
		{Title: "Titania", Diff: "MASTER", Level: "14+"},
		{Title: "Opfer", Diff: "LUNATIC", Level: "14+"},
		{Title: "Singularity (Arcaea)", Diff: "MASTER", Level: "14"},
	}

	{
		err := store.UpsertCharts(ctx, catalog)
		require.NoError(t, err)

		rows, err := store.ExportAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		// same catalog again must not create more rows
		err = store.UpsertCharts(ctx, catalog)
		require.NoError(t, err)
		rows, err = store.ExportAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)

		for _, row := range rows {
			require.Equal(t, chartid.ChartID(row.Title, row.Diff, row.Level), row.ID)
			require.False(t, row.TechFlag)
			require.Nil(t, row.ChartConst)
			require.Nil(t, row.PsTheoryScore)
		}
	}

	titaniaID := chartid.ChartID("Titania", "MASTER", "14+")

	{
		err := store.UpdateTechFlags(ctx, []TechFlagRecord{
			{Title: "Titania", Diff: "MASTER", Level: "14+"},
			// unknown identity, must be skipped rather than created
			{Title: "Titania", Diff: "EXPERT", Level: "13"},
		})
		require.NoError(t, err)

		rows, err := store.ExportAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			require.Equal(t, row.ID == titaniaID, row.TechFlag)
		}
	}

	{
		err := store.UpdateConstants(ctx, []ConstantRecord{
			{
				Title: "Titania", Diff: "MASTER", Level: "14+",
				ChartConst: 14.7,
				Ps5Rating:  1.08,
				Ps4Rating:  0.864,
				Ps3Rating:  0.648,
				Ps2Rating:  0.432,
				Ps1Rating:  0.216,
			},
			{Title: "Not In Catalog", Diff: "MASTER", Level: "14", ChartConst: 14.0},
		})
		require.NoError(t, err)

		rows, err := store.ExportAll(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			if row.ID != titaniaID {
				require.Nil(t, row.ChartConst)
				continue
			}
			require.NotNil(t, row.ChartConst)
			require.Equal(t, 14.7, *row.ChartConst)
			require.Equal(t, 1.08, *row.Ps5Rating)
		}
	}

	{
		err := store.UpdateRankingStats(ctx, []RankingRecord{
			{
				Title: "Titania", Diff: "MASTER", Level: "14+",
				TsTheoryCounts:  []int{12, 58},
				PsTheoryScore:   1000000,
				Ps5Tolerance:    20000,
				Ps5MinScore:     980000,
				Ps5RainbowCount: 1,
				Ps5Count:        2,
				Ps4Count:        3,
				PsTheoryCount:   1,
			},
		})
		require.NoError(t, err)

		rows, err := store.ExportAll(ctx)
		require.NoError(t, err)
		for _, row := range rows {
			if row.ID != titaniaID {
				require.Nil(t, row.PsTheoryScore)
				continue
			}
			require.Equal(t, []int{12, 58}, row.TsTheoryCounts)
			require.EqualValues(t, 1000000, *row.PsTheoryScore)
			require.EqualValues(t, 20000, *row.Ps5Tolerance)
			require.EqualValues(t, 980000, *row.Ps5MinScore)
			// total is rainbow + plain five-star
			require.EqualValues(t, 3, *row.Ps5TotalCount)
			require.EqualValues(t, 1, *row.Ps5RainbowCount)
			require.EqualValues(t, 2, *row.Ps5Count)
			require.EqualValues(t, 3, *row.Ps4Count)
			require.EqualValues(t, 1, *row.PsTheoryCount)
		}
	}

	{
		// one title scan serves every miss in a reconciliation call
		misses := store.newMissLogger()
		misses.warn(ctx, "no-such-id", "Titanla")
		require.ElementsMatch(t,
			[]string{"Titania", "Opfer", "Singularity (Arcaea)"},
			misses.titles,
		)

		err := store.UpsertCharts(ctx, []ChartRecord{
			{Title: "Felys Final Remix", Diff: "MASTER", Level: "14"},
		})
		require.NoError(t, err)
		misses.warn(ctx, "no-such-id-2", "Opfr")
		// the cached list does not pick up rows added mid-call
		require.Len(t, misses.titles, 3)
	}

	{
		// re-running the catalog upsert must keep every reconciled column
		err := store.UpsertCharts(ctx, catalog)
		require.NoError(t, err)

		rows, err := store.ExportAll(ctx)
		require.NoError(t, err)
		for _, row := range rows {
			if row.ID == titaniaID {
				require.True(t, row.TechFlag)
				require.NotNil(t, row.ChartConst)
				require.NotNil(t, row.PsTheoryScore)
			}
		}
	}
}
