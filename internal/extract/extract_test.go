package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div id="divProcesso1">
  <a class="linkProcesso" href="/cpopg/show.do?processo.codigo=AA01">
    <span class="nuProcesso">  1001234-56.2023.8.26.0100 </span></a>
  <div class="nomeParte">Maria   da Silva</div>
  <div class="classeProcesso">Procedimento Comum Cível</div>
  <div class="assuntoPrincipalProcesso">Indenização por Dano Moral</div>
  <div class="dataLocalDistribuicaoProcesso">12/03/2023 - 3ª Vara Cível</div>
</div>
<div id="divProcesso2">
  <span class="nuProcesso">2002345-67.2022.8.26.0001</span>
  <div class="classeProcesso">Execução de Título</div>
  <div class="assuntoPrincipalProcesso">Cheque</div>
  <div class="dataLocalDistribuicaoProcesso">01/02/2022</div>
</div>
<div id="divProcesso3">
  <span class="nuProcesso">3003456-78.2021.8.26.0002</span>
  <div class="classeProcesso">Monitória</div>
</div>
</body></html>`

func newSession(t *testing.T, url, html string) render.Session {
	t.Helper()
	loader := render.NewMapLoader()
	loader.Set(url, html)
	session := render.NewStaticSession(loader)
	require.NoError(t, session.Navigate(context.Background(), url))
	return session
}

func newExtractor(tel telemetry.API) Extractor {
	return NewExtractor(Options{Selectors: portal.DefaultSelectors}, tel)
}

func TestPage(t *testing.T) {
	rec := telemetry.NewRecorder()
	session := newSession(t, "https://portal.test/results", resultsPage)

	result, err := newExtractor(rec).Page(context.Background(), session, "000123SP")
	require.NoError(t, err)

	expected := []model.CaseRecord{
		{
			RegistrationID: "000123SP",
			AdvocateName:   model.Str("Maria da Silva"),
			CaseNumber:     "1001234-56.2023.8.26.0100",
			CaseClass:      "Procedimento Comum Cível",
			Subject:        "Indenização por Dano Moral",
			ReceivedDate:   model.Str("12/03/2023"),
			Court:          model.Str("3ª Vara Cível"),
			CaseLink:       model.Str("/cpopg/show.do?processo.codigo=AA01"),
		},
		{
			RegistrationID: "000123SP",
			CaseNumber:     "2002345-67.2022.8.26.0001",
			CaseClass:      "Execução de Título",
			Subject:        "Cheque",
			ReceivedDate:   model.Str("01/02/2022"),
		},
	}
	if diff := cmp.Diff(expected, result.Records); diff != "" {
		t.Fatal(diff)
	}

	require.Len(t, result.Rejected, 1)
	rejected := result.Rejected[0]
	require.False(t, rejected.OK())
	require.ErrorIs(t, rejected.Err(), model.ErrExtractionMiss)
	require.Contains(t, rejected.Missing(), FieldSubject)
	require.Equal(t, 1, rec.Warnings(report_extract_case))
}

func TestCaseOptionalFields(t *testing.T) {
	session := newSession(t, "https://portal.test/results", resultsPage)
	elements, err := session.FindElements(context.Background(), portal.DefaultSelectors.Case)
	require.NoError(t, err)

	outcome := newExtractor(telemetry.NewRecorder()).Case(elements[1], "000123SP")
	require.True(t, outcome.OK())
	require.NoError(t, outcome.Err())
	require.ElementsMatch(t, []string{FieldAdvocateName, FieldCourt, FieldCaseLink}, outcome.Missing())
	require.Nil(t, outcome.Record.AdvocateName)
	require.Nil(t, outcome.Record.Court)
	require.Nil(t, outcome.Record.CaseLink)
}

func TestCaseWithoutRegistrationId(t *testing.T) {
	session := newSession(t, "https://portal.test/results", resultsPage)
	elements, err := session.FindElements(context.Background(), portal.DefaultSelectors.Case)
	require.NoError(t, err)

	outcome := newExtractor(telemetry.NewRecorder()).Case(elements[0], "")
	require.False(t, outcome.OK())
	require.Equal(t, []string{FieldRegistrationId}, outcome.Missing())
}

func TestPageWithoutCases(t *testing.T) {
	session := newSession(t, "https://portal.test/empty", `<html><body><div id="mensagemRetorno">Não existem informações</div></body></html>`)

	result, err := newExtractor(telemetry.NewRecorder()).Page(context.Background(), session, "000123SP")
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.Empty(t, result.Rejected)
}

func TestPageClosedSession(t *testing.T) {
	rec := telemetry.NewRecorder()
	session := newSession(t, "https://portal.test/results", resultsPage)
	require.NoError(t, session.Quit())

	_, err := newExtractor(rec).Page(context.Background(), session, "000123SP")
	require.ErrorIs(t, err, render.ErrSessionClosed)
	require.Equal(t, 1, rec.Broken(report_extract_page))
}

const encodedFile = "%2Fpastadigital%2FgetPDF.do%3FnuSeqRecurso%3D00000%26deTipoDocDigital%3DPeti%25C3%25A7%25C3%25A3o%26idDocumento%3D1234"
const decodedFile = "/pastadigital/getPDF.do?nuSeqRecurso=00000&deTipoDocDigital=Peti%C3%A7%C3%A3o&idDocumento=1234"

func TestDocumentUrl(t *testing.T) {
	cases := []struct {
		name     string
		html     string
		expected string
		found    bool
	}{
		{
			name:     "iframe viewer",
			html:     `<html><body><iframe src="/pastadigital/viewer.html?file=` + encodedFile + `&amp;zoom=1"></iframe></body></html>`,
			expected: decodedFile,
			found:    true,
		},
		{
			name:     "embed viewer",
			html:     `<html><body><embed src="/pastadigital/viewer.html?file=` + encodedFile + `"></body></html>`,
			expected: decodedFile,
			found:    true,
		},
		{
			name:     "markup fallback",
			html:     `<html><body><script>var viewer = "/pastadigital/viewer.html?file=` + encodedFile + `";</script></body></html>`,
			expected: decodedFile,
			found:    true,
		},
		{
			name:     "frame without viewer falls back to markup",
			html:     `<html><body><iframe src="/ads.html"></iframe><a href="viewer.html?file=` + encodedFile + `">x</a></body></html>`,
			expected: decodedFile,
			found:    true,
		},
		{
			name:  "nothing",
			html:  `<html><body><p>Documento indisponível</p></body></html>`,
			found: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := newSession(t, "https://portal.test/viewer", tc.html)
			file, ok := newExtractor(telemetry.NewRecorder()).DocumentUrl(context.Background(), session)
			require.Equal(t, tc.found, ok)
			require.Equal(t, tc.expected, file)
		})
	}
}

type failingSrcWait struct {
	render.Session
	selector string
	err      error
}

func (s failingSrcWait) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if selector == s.selector {
		return s.err
	}
	return s.Session.WaitForSelector(ctx, selector, timeout)
}

func TestDocumentUrlReportsFailedSrcWait(t *testing.T) {
	html := `<html><body><iframe src="/pastadigital/viewer.html?file=` + encodedFile + `"></iframe></body></html>`

	rec := telemetry.NewRecorder()
	session := failingSrcWait{
		Session:  newSession(t, "https://portal.test/viewer", html),
		selector: portal.DefaultSelectors.ViewerWithSrc,
		err:      errors.New("target closed"),
	}
	file, ok := newExtractor(rec).DocumentUrl(context.Background(), session)
	require.True(t, ok)
	require.Equal(t, decodedFile, file)
	require.Equal(t, 1, rec.Warnings(report_extract_document_url))

	// running out of time is not worth a report
	rec = telemetry.NewRecorder()
	session.err = render.ErrSelectorTimeout
	file, ok = newExtractor(rec).DocumentUrl(context.Background(), session)
	require.True(t, ok)
	require.Equal(t, decodedFile, file)
	require.Equal(t, 0, rec.Warnings(report_extract_document_url))
}
