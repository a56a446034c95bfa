package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/extract"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"

	"github.com/stretchr/testify/require"
)

func casesPage(paginators int, numbers ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, n := range numbers {
		fmt.Fprintf(&b, `<div id="divProcesso%d"><span class="nuProcesso">%s</span>`+
			`<div class="classeProcesso">Classe</div><div class="assuntoPrincipalProcesso">Assunto</div></div>`, i, n)
	}
	for i := range paginators {
		fmt.Fprintf(&b, `<a class="paginacao" href="#">%d</a>`, i+1)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func setup(t *testing.T) (Paginator, portal.Portal, *render.MapLoader, *telemetry.Recorder) {
	t.Helper()
	p, err := portal.New(portal.Options{BaseUrl: "https://portal.test"})
	require.NoError(t, err)
	rec := telemetry.NewRecorder()
	ex := extract.NewExtractor(extract.Options{Selectors: p.Selectors}, rec)
	return NewPaginator(p, ex, Options{}, rec), p, render.NewMapLoader(), rec
}

func collect(q *Query) []string {
	var numbers []string
	for r := range q.Records() {
		numbers = append(numbers, r.CaseNumber)
	}
	return numbers
}

func TestSearchPaginates(t *testing.T) {
	paginator, p, loader, _ := setup(t)
	loader.Set(p.SearchUrl("000001SP"), casesPage(3, "1", "2"))
	loader.Set(p.PageUrl("000001SP", 2), casesPage(3, "3"))
	loader.Set(p.PageUrl("000001SP", 3), casesPage(3, "4", "5"))

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000001SP")
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, collect(q))
	require.NoError(t, q.Err())
	require.Equal(t, 3, q.Pages())
	require.Equal(t, 3, q.Visited())

	// single use
	require.Empty(t, collect(q))
	require.Equal(t, []string{
		p.SearchUrl("000001SP"),
		p.PageUrl("000001SP", 2),
		p.PageUrl("000001SP", 3),
	}, loader.Visits())
}

func TestSearchWithoutPagination(t *testing.T) {
	paginator, p, loader, _ := setup(t)
	loader.Set(p.SearchUrl("000002SP"), casesPage(0, "9"))

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000002SP")
	require.Equal(t, []string{"9"}, collect(q))
	require.Equal(t, 1, q.Pages())
	require.Len(t, loader.Visits(), 1)
}

func TestSearchSkipsBrokenPage(t *testing.T) {
	paginator, p, loader, rec := setup(t)
	loader.Set(p.SearchUrl("000003SP"), casesPage(3, "1"))
	loader.Set(p.PageUrl("000003SP", 3), casesPage(3, "3"))

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000003SP")
	require.Equal(t, []string{"1", "3"}, collect(q))
	require.NoError(t, q.Err())
	require.Equal(t, 2, q.Visited())
	require.Equal(t, 1, rec.Warnings(report_search_navigate))
}

func TestSearchNavigationFailure(t *testing.T) {
	paginator, _, loader, _ := setup(t)

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000004SP")
	require.Empty(t, collect(q))
	require.ErrorIs(t, q.Err(), model.ErrNavigation)
	require.ErrorIs(t, q.Err(), render.ErrPageNotFound)
}

func TestSearchStopsEarly(t *testing.T) {
	paginator, p, loader, _ := setup(t)
	loader.Set(p.SearchUrl("000005SP"), casesPage(2, "1", "2"))
	loader.Set(p.PageUrl("000005SP", 2), casesPage(2, "3"))

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000005SP")
	for range q.Records() {
		break
	}
	require.Len(t, loader.Visits(), 1)
}

func TestSearchCountsRejected(t *testing.T) {
	paginator, p, loader, _ := setup(t)
	loader.Set(p.SearchUrl("000006SP"), `<html><body>
<div id="divProcesso1"><div class="classeProcesso">x</div></div>
<div id="divProcesso2"><span class="nuProcesso">7</span><div class="classeProcesso">x</div><div class="assuntoPrincipalProcesso">y</div></div>
</body></html>`)

	q := paginator.Search(context.Background(), render.NewStaticSession(loader), "000006SP")
	require.Equal(t, []string{"7"}, collect(q))
	require.Equal(t, 1, q.Rejected())
}
