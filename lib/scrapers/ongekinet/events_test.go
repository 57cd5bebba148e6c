package ongekinet

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const eventListFixture = `
<div class="wrapper">
	<div class="basic_btn event_back m_15 f_0">
		<div class="event_name">Some Technical Event</div>
		<div class="event_period">テクニカルチャレンジ開催期間: 2026-01-01 ~ 2026-01-14</div>
		<form action="/ongeki-mobile/event/techChallenge/">
			<input type="hidden" name="idx" value="event-1">
		</form>
	</div>
	<div class="basic_btn event_back m_15 f_0">
		<div class="event_name">Ordinary Score Attack</div>
		<div class="event_period">開催期間: 2026-01-01 ~ 2026-01-14</div>
		<form action="/ongeki-mobile/event/scoreAttack/">
			<input type="hidden" name="idx" value="event-2">
		</form>
	</div>
	<div class="basic_btn event_back m_15 f_0">
		<div class="event_name">Banner Only, No Detail Page</div>
		<div class="event_period">テクニカルチャレンジ開催期間: 2026-02-01 ~ 2026-02-14</div>
	</div>
</div>`

func TestParseEventIndexes(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(eventListFixture))
	require.NoError(t, err)

	indexes := parseEventIndexes(doc)
	require.Equal(t, []string{"event-1"}, indexes)
}

const eventChartsFixture = `
<div class="wrapper">
	<div class="basic_btn master_score_back m_15">
		<div class="music_label">Titania</div>
		<div class="score_level">14+</div>
	</div>
	<div class="basic_btn expert_score_back m_15">
		<div class="music_label">Singularity</div>
		<div class="score_level">13+</div>
	</div>
	<div class="basic_btn lunatic_score_back m_15">
		<div class="music_label">Opfer</div>
		<div class="score_level">14+</div>
	</div>
	<div class="basic_btn event_back m_15 f_0">
		<div class="event_name">not a chart card</div>
	</div>
	<div class="basic_btn master_score_back m_15">
		<div class="score_level">12</div>
	</div>
</div>`

func TestParseEventCharts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(eventChartsFixture))
	require.NoError(t, err)

	charts := parseEventCharts(doc)
	// the event banner has no difficulty style and the last card has no
	// title, both are dropped
	require.Equal(t, []FlaggedChart{
		{Title: "Titania", Level: "14+", Diff: DiffMaster},
		{Title: "Singularity", Level: "13+", Diff: DiffExpert},
		{Title: "Opfer", Level: "14+", Diff: DiffLunatic},
	}, charts)
}
