package chartbatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"platscore-backend/lib/scrapers/ongekinet"
	"platscore-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPageFixture = `
<div class="login_block">
	<form action="/sign-in/" method="post">
		<input type="hidden" name="token" value="csrf-123">
		<input type="text" name="segaId">
		<input type="password" name="password">
	</form>
</div>`

const technicalPageFixture = `
<table class="music_detail_ranking_inner_table">
	<tbody><tr><td>
		<table><tbody>
			<tr><td class="theory_block"><div class="theory_text_block">12</div></td></tr>
		</tbody></table>
	</td></tr></tbody>
</table>`

const platinumPageFixture = `
<div class="border_block master_score_back m_15 p_5 t_l">
	<div class="platinum_score_text_block">MAX 1,000,000</div>
</div>
<table class="music_ranking_inner_table">
	<tbody><tr><td>
		<table><tbody>
			<tr>
				<td><div class="platinum_score_star_block">★5</div></td>
				<td><div class="platinum_score_text_block">1,000,000</div></td>
			</tr>
		</tbody></table>
	</td></tr></tbody>
</table>`

// rankingSite fakes the source site with a session that starts expired:
// ranking pages come back in the logged-out shape until the login flow
// completes.
type rankingSite struct {
	mu       sync.Mutex
	loggedIn bool
	logins   int
}

func (s *rankingSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginPageFixture))
	})
	mux.HandleFunc("/sign-in/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<form action="/aimeList/submit/" method="post">
			<input type="hidden" name="idx" value="0">
		</form>`))
	})
	mux.HandleFunc("/aimeList/submit/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.loggedIn = true
		s.logins++
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "_t", Value: "session-token", Path: "/"})
		w.Write([]byte(`<div class="user_data_container">player</div>`))
	})
	mux.HandleFunc("/ranking/musicRankingDetail/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		loggedIn := s.loggedIn
		s.mu.Unlock()
		if !loggedIn {
			w.Write([]byte(loginPageFixture))
			return
		}
		switch r.URL.Query().Get("scoreType") {
		case "2":
			w.Write([]byte(technicalPageFixture))
		default:
			w.Write([]byte(platinumPageFixture))
		}
	})
	return mux
}

func TestCollectRankingStatsReauth(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:chartbatch")
	defer cleanup()

	site := &rankingSite{}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	client, err := ongekinet.NewClient(ongekinet.ClientOptions{
		BaseUrl:  server.URL + "/",
		Username: "user",
		Password: "pass",
	})
	require.NoError(t, err)

	pipeline := NewPipeline(Options{Ongeki: client})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	charts := []ongekinet.Chart{
		{Title: "Titania", Level: "14+", Diff: ongekinet.DiffMaster, DiffNum: "3", Idx: "a%3D"},
		{Title: "Opfer", Level: "14+", Diff: ongekinet.DiffMaster, DiffNum: "3", Idx: "b%3D"},
	}

	// the session starts expired, so the first batch trips the zero
	// theory-score guard, re-authenticates, and resumes
	stats, err := pipeline.collectRankingStats(ctx, ongekinet.Credentials{Token: "stale"}, charts)
	require.NoError(t, err)

	require.Len(t, stats, 2)
	require.Equal(t, "Titania", stats[0].Title)
	require.Equal(t, "Opfer", stats[1].Title)
	for _, s := range stats {
		require.Equal(t, 1000000, s.PsTheoryScore)
		require.Equal(t, 1, s.Ps5Count)
		require.Equal(t, 1, s.PsTheoryCount)
		require.Equal(t, []int{12}, s.TsTheoryCounts)
	}

	site.mu.Lock()
	defer site.mu.Unlock()
	require.Equal(t, 1, site.logins)
}

func TestCollectRankingStatsNoTrailingPause(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:chartbatch")
	defer cleanup()

	site := &rankingSite{loggedIn: true}
	server := httptest.NewServer(site.handler())
	defer server.Close()

	client, err := ongekinet.NewClient(ongekinet.ClientOptions{
		BaseUrl:  server.URL + "/",
		Username: "user",
		Password: "pass",
	})
	require.NoError(t, err)

	pipeline := NewPipeline(Options{Ongeki: client})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	charts := []ongekinet.Chart{
		{Title: "Titania", Level: "14+", Diff: ongekinet.DiffMaster, DiffNum: "3", Idx: "a%3D"},
		{Title: "Opfer", Level: "14+", Diff: ongekinet.DiffMaster, DiffNum: "3", Idx: "b%3D"},
	}

	// a single batch pays no inter-batch pause, so the whole collection
	// stays well under one pause interval against a loopback server
	start := time.Now()
	stats, err := pipeline.collectRankingStats(ctx, ongekinet.Credentials{Token: "t"}, charts)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Less(t, time.Since(start), rankingPause)
}
