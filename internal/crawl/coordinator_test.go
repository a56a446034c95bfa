package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/download"
	"esaj-crawler/internal/extract"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"
	"esaj-crawler/internal/resolve"
	"esaj-crawler/internal/search"
	"esaj-crawler/internal/store"

	"github.com/stretchr/testify/require"
)

const noResults = `<html><body><div id="mensagemRetorno">Não existem informações disponíveis para os parâmetros informados.</div></body></html>`

type testCase struct {
	number string
	link   string
}

func resultsPage(cases ...testCase) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, c := range cases {
		fmt.Fprintf(&b, `<div id="divProcesso%d"><a class="linkProcesso" href="%s"><span class="nuProcesso">%s</span></a>`+
			`<div class="classeProcesso">Procedimento Comum</div><div class="assuntoPrincipalProcesso">Cobrança</div>`+
			`<div class="dataLocalDistribuicaoProcesso">01/02/2023 - 1ª Vara Cível</div></div>`, i, c.link, c.number)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fixture struct {
	portal   portal.Portal
	loader   *render.MapLoader
	rec      *telemetry.Recorder
	clock    *chrono.Fake
	dir      string
	files    store.BatchFiles
	sql      *store.SQLStore
	created  atomic.Int32
	sessions render.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := portal.New(portal.Options{BaseUrl: "https://portal.test"})
	require.NoError(t, err)
	dir := t.TempDir()
	f := &fixture{
		portal: p,
		loader: render.NewMapLoader(),
		rec:    telemetry.NewRecorder(),
		clock:  chrono.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		dir:    dir,
		files:  store.NewBatchFiles(filepath.Join(dir, "processos")),
	}
	f.sql = store.NewSQLStore(filepath.Join(dir, "db"), f.rec)
	f.sessions = func(ctx context.Context) (render.Session, error) {
		f.created.Add(1)
		return render.NewStaticSession(f.loader), nil
	}
	return f
}

func (f *fixture) setResults(n int, html string) {
	f.loader.Set(f.portal.SearchUrl(oab.Format(n, "SP")), html)
}

func (f *fixture) coordinator(t *testing.T, opts Options, documents *DocumentStage) *Coordinator {
	t.Helper()
	ex := extract.NewExtractor(extract.Options{Selectors: f.portal.Selectors}, f.rec)
	if opts.Prefix == "" {
		opts.Prefix = "SP"
	}
	c, err := NewCoordinator(opts, Deps{
		Sessions:   f.sessions,
		Paginator:  search.NewPaginator(f.portal, ex, search.Options{}, f.rec),
		Checkpoint: store.NewCheckpoint(f.files, f.sql, f.rec),
		Documents:  documents,
		Clock:      f.clock,
		Tel:        f.rec,
	})
	require.NoError(t, err)
	return c
}

func TestRunSingleBatch(t *testing.T) {
	f := newFixture(t)
	f.setResults(1, resultsPage(testCase{number: "1000001-11.2023.8.26.0100"}, testCase{number: "1000002-22.2023.8.26.0100"}))
	f.setResults(2, noResults)
	f.setResults(3, resultsPage(testCase{number: "1000003-33.2023.8.26.0100"}))

	c := f.coordinator(t, Options{Start: 1, End: 3, Workers: 1, BatchSize: 3, BatchDelay: time.Minute}, nil)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Batches)
	require.Equal(t, 3, summary.Identifiers)
	require.Equal(t, 3, summary.Cases)
	require.Equal(t, 3, summary.Inserted)
	require.Equal(t, 0, summary.FatalWorkers)
	require.Equal(t, []string{f.files.Path(1, 3)}, summary.BatchFiles)

	paths, err := f.files.List()
	require.NoError(t, err)
	require.Len(t, paths, 1)

	recs, err := f.files.Read(paths[0])
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "000001SP", recs[0].RegistrationID)
	require.Equal(t, "1000001-11.2023.8.26.0100", recs[0].CaseNumber)
	require.Equal(t, "000001SP", recs[1].RegistrationID)
	require.Equal(t, "1000002-22.2023.8.26.0100", recs[1].CaseNumber)
	require.Equal(t, "000003SP", recs[2].RegistrationID)
	require.Equal(t, "1000003-33.2023.8.26.0100", recs[2].CaseNumber)

	require.Equal(t, []State{Idle, BatchInFlight, Checkpointed, Done}, c.States())
	require.Empty(t, f.clock.Sleeps())
	require.EqualValues(t, 1, f.created.Load())
}

func TestRunBatchesInOrder(t *testing.T) {
	f := newFixture(t)
	for n := 1; n <= 5; n++ {
		f.setResults(n, resultsPage(testCase{number: fmt.Sprintf("100000%d-00.2023.8.26.0100", n)}))
	}

	c := f.coordinator(t, Options{Start: 1, End: 5, Workers: 2, BatchSize: 2, BatchDelay: 30 * time.Second}, nil)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, summary.Batches)
	require.Equal(t, 5, summary.Cases)
	require.Equal(t, []string{f.files.Path(1, 2), f.files.Path(3, 4), f.files.Path(5, 5)}, summary.BatchFiles)
	require.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, f.clock.Sleeps())
	require.Equal(t, []State{
		Idle,
		BatchInFlight, Checkpointed,
		BatchInFlight, Checkpointed,
		BatchInFlight, Checkpointed,
		Done,
	}, c.States())

	// sessions outlive batches
	require.EqualValues(t, 2, f.created.Load())

	recs, err := f.files.Read(f.files.Path(3, 4))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "000003SP", recs[0].RegistrationID)
	require.Equal(t, "000004SP", recs[1].RegistrationID)

	// a second run over the same range adds no rows
	c = f.coordinator(t, Options{Start: 1, End: 5, Workers: 2, BatchSize: 2}, nil)
	summary, err = c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, summary.Cases)
	require.Equal(t, 0, summary.Inserted)
	count, err := f.sql.CountCases(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, count)
}

func TestRunEmptyRange(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, Options{Start: 10, End: 9, Workers: 2, BatchSize: 2}, nil)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Batches)
	require.Equal(t, []State{Idle, Done}, c.States())
}

func TestNewCoordinatorValidates(t *testing.T) {
	f := newFixture(t)
	deps := Deps{Sessions: f.sessions, Clock: f.clock, Tel: f.rec}
	_, err := NewCoordinator(Options{Workers: 0, BatchSize: 1}, deps)
	require.Error(t, err)
	_, err = NewCoordinator(Options{Workers: 1, BatchSize: 0}, deps)
	require.Error(t, err)
}

// dyingSession stops working after a number of navigations, like a crashed browser.
type dyingSession struct {
	render.Session
	left int
}

var errCrashed = errors.New("browser crashed")

func (d *dyingSession) Navigate(ctx context.Context, url string) error {
	if d.left <= 0 {
		return errCrashed
	}
	d.left--
	return d.Session.Navigate(ctx, url)
}

func (d *dyingSession) Alive(ctx context.Context) error {
	if d.left <= 0 {
		return errCrashed
	}
	return nil
}

func TestWorkerFatalIsContained(t *testing.T) {
	f := newFixture(t)
	for n := 1; n <= 12; n++ {
		f.setResults(n, resultsPage(testCase{number: fmt.Sprintf("2000%03d-00.2023.8.26.0100", n)}))
	}
	f.sessions = func(ctx context.Context) (render.Session, error) {
		// the first session crashes after two navigations, every later one is fine
		left := 1000
		if f.created.Add(1) == 1 {
			left = 2
		}
		return &dyingSession{Session: render.NewStaticSession(f.loader), left: left}, nil
	}

	c := f.coordinator(t, Options{Start: 1, End: 12, Workers: 2, BatchSize: 6}, nil)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, summary.Batches)
	require.Equal(t, 1, summary.FatalWorkers)
	// one worker of the first batch lost the last identifier of its partition
	require.Equal(t, 11, summary.Cases)
	require.Equal(t, 1, summary.NavigationFailures)
	require.Equal(t, 1, f.rec.Broken(report_worker_run))
	// the crashed session is replaced for the second batch
	require.EqualValues(t, 3, f.created.Load())

	recs, err := f.files.Read(f.files.Path(1, 6))
	require.NoError(t, err)
	require.Len(t, recs, 5)
	recs, err = f.files.Read(f.files.Path(7, 12))
	require.NoError(t, err)
	require.Len(t, recs, 6)
}

func TestSessionFactoryFailure(t *testing.T) {
	f := newFixture(t)
	f.sessions = func(ctx context.Context) (render.Session, error) {
		return nil, errors.New("chrome not found")
	}

	c := f.coordinator(t, Options{Start: 1, End: 2, Workers: 1, BatchSize: 2}, nil)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.FatalWorkers)
	require.Equal(t, 0, summary.Cases)
	require.Len(t, summary.BatchFiles, 1)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := f.coordinator(t, Options{Start: 1, End: 2, Workers: 1, BatchSize: 1}, nil)
	_, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// cancellingSession cancels the run as soon as it navigates to a given url.
type cancellingSession struct {
	render.Session
	at     string
	cancel context.CancelFunc
}

func (c *cancellingSession) Navigate(ctx context.Context, url string) error {
	if url == c.at {
		c.cancel()
	}
	return c.Session.Navigate(ctx, url)
}

func TestRunInterruptedBatchIsNotCheckpointed(t *testing.T) {
	f := newFixture(t)
	for n := 1; n <= 4; n++ {
		f.setResults(n, resultsPage(testCase{number: fmt.Sprintf("3000%03d-00.2023.8.26.0100", n)}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sessions = func(context.Context) (render.Session, error) {
		return &cancellingSession{
			Session: render.NewStaticSession(f.loader),
			at:      f.portal.SearchUrl(oab.Format(3, "SP")),
			cancel:  cancel,
		}, nil
	}

	c := f.coordinator(t, Options{Start: 1, End: 4, Workers: 1, BatchSize: 2}, nil)
	summary, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// the first batch is on disk, the interrupted one is not
	require.Equal(t, []string{f.files.Path(1, 2)}, summary.BatchFiles)
	end, ok, err := f.files.LastCompletedIn(1, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, end)
}

func newPdfServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idDocumento") == "bad" {
			w.Write([]byte("<html>erro</html>"))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4\n%%EOF\n"))
	}))
	t.Cleanup(server.Close)
	return server
}

func (f *fixture) documentStage(t *testing.T, fsys store.Filesystem) *DocumentStage {
	t.Helper()
	ex := extract.NewExtractor(extract.Options{Selectors: f.portal.Selectors}, f.rec)
	bridge, err := download.NewBridge(fsys, fsys, f.clock, download.Options{RequestsPerSecond: 1000, Burst: 10}, f.rec)
	require.NoError(t, err)
	return NewDocumentStage(resolve.NewResolver(f.portal, ex, resolve.Options{}, f.rec), bridge)
}

func (f *fixture) setCaseWithDocuments(server *httptest.Server, caseLink string, docIds ...string) {
	var anchors strings.Builder
	anchors.WriteString("<html><body>")
	for _, id := range docIds {
		viewer := "https://portal.test/cpopg/abrirDocumentoVinculado.do?doc=" + id
		fmt.Fprintf(&anchors, `<a class="linkMovVincProc" href="%s">doc</a>`, viewer)
		file := server.URL + "/pastadigital/getPDF.do?deTipoDocDigital=Peti%C3%A7%C3%A3o&idDocumento=" + id
		f.loader.Set(viewer, fmt.Sprintf(
			`<html><body><iframe src="/pastadigital/viewer.html?file=%s"></iframe></body></html>`,
			url.QueryEscape(file),
		), model.Cookie{Name: "JSESSIONID", Value: "abc"})
	}
	anchors.WriteString("</body></html>")
	f.loader.Set(caseLink, anchors.String())
}

func TestRunWithDocuments(t *testing.T) {
	f := newFixture(t)
	server := newPdfServer(t)
	fsys := store.NewFilesystem(filepath.Join(f.dir, "process_documents"))

	caseLink := "https://portal.test/cpopg/show.do?processo.codigo=1"
	f.setResults(1, resultsPage(
		testCase{number: "1000001-11.2023.8.26.0100", link: caseLink},
		testCase{number: "1000002-22.2023.8.26.0100"},
	))
	f.setCaseWithDocuments(server, caseLink, "1", "2", "bad")

	c := f.coordinator(t, Options{Start: 1, End: 1, Workers: 1, BatchSize: 1}, f.documentStage(t, fsys))
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Cases)
	require.Equal(t, 2, summary.Documents)
	require.Equal(t, 1, summary.RejectedPayloads)
	require.Equal(t, 1, summary.WithoutDocuments)

	for _, id := range []string{"1", "2"} {
		content, err := os.ReadFile(fsys.Path("1000001-11.2023.8.26.0100", "Peticao", id))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(content), "%PDF"))
	}
	_, err = os.Stat(fsys.Path("1000001-11.2023.8.26.0100", "Peticao", "bad"))
	require.True(t, os.IsNotExist(err))

	// the standalone pass over the batch files skips what is already stored
	c = f.coordinator(t, Options{Workers: 2, BatchSize: 1}, f.documentStage(t, fsys))
	summary, err = c.RunDocuments(context.Background(), f.files)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Batches)
	require.Equal(t, 2, summary.Cases)
	require.Equal(t, 0, summary.Documents)
	require.Equal(t, 2, summary.AlreadyStored)
	require.Equal(t, 1, summary.RejectedPayloads)
}

func TestRunDocumentsRequiresStage(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, Options{Workers: 1, BatchSize: 1}, nil)
	_, err := c.RunDocuments(context.Background(), f.files)
	require.Error(t, err)
}
