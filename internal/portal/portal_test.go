package portal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUrls(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)

	require.Equal(
		t,
		"https://esaj.tjsp.jus.br/cpopg/search.do?conversationId=&cbPesquisa=NUMOAB&dadosConsulta.valorConsulta=077826SP&cdForo=-1",
		p.SearchUrl("077826SP"),
	)
	require.Equal(t, p.SearchUrl("077826SP"), p.PageUrl("077826SP", 1))
	require.Equal(t, p.SearchUrl("077826SP")+"&paginaConsulta=3", p.PageUrl("077826SP", 3))

	p, err = New(Options{BaseUrl: "http://127.0.0.1:8080/ignored", PageParam: "page"})
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/cpopg/search.do?conversationId=&cbPesquisa=NUMOAB&dadosConsulta.valorConsulta=1SP&cdForo=-1&page=2", p.PageUrl("1SP", 2))

	_, err = New(Options{BaseUrl: "esaj.tjsp.jus.br"})
	require.Error(t, err)
}
