// Package portal holds the url and markup contract of the e-SAJ case search portal.
package portal

import (
	"fmt"
	"net/url"
	"strconv"
)

const DefaultBaseUrl = "https://esaj.tjsp.jus.br"

// Selectors are the css selectors the extractor relies on.
type Selectors struct {
	Case         string
	CaseNumber   string
	AdvocateName string
	CaseClass    string
	Subject      string
	DateAndCourt string
	CaseLink     string
	Pagination   string
	// Ready matches anything that only shows up once a result page finished rendering,
	// including the "no results" message.
	Ready         string
	LinkedDocs    string
	ViewerAny     string
	ViewerWithSrc string
}

var DefaultSelectors = Selectors{
	Case:          "div[id^='divProcesso']",
	CaseNumber:    ".nuProcesso",
	AdvocateName:  "div.nomeParte",
	CaseClass:     ".classeProcesso",
	Subject:       ".assuntoPrincipalProcesso",
	DateAndCourt:  ".dataLocalDistribuicaoProcesso",
	CaseLink:      "a.linkProcesso",
	Pagination:    "a.paginacao",
	Ready:         "div[id^='divProcesso'], #mensagemRetorno, #spwTabelaMensagem",
	LinkedDocs:    ".linkMovVincProc",
	ViewerAny:     "iframe, embed",
	ViewerWithSrc: `iframe[src*="viewer.html?file="], embed[src*="viewer.html?file="]`,
}

// DateCourtSeparator splits ".dataLocalDistribuicaoProcesso" into received date and court.
const DateCourtSeparator = " - "

// Portal builds the urls of one portal deployment.
type Portal struct {
	BaseUrl   *url.URL
	PageParam string
	Selectors Selectors
}

type Options struct {
	BaseUrl string
	// PageParam is the query parameter selecting a result page.
	PageParam string
}

func New(opts Options) (Portal, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.PageParam == "" {
		opts.PageParam = "paginaConsulta"
	}
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return Portal{}, fmt.Errorf("parse portal base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return Portal{}, fmt.Errorf("portal base url must be absolute: %q", opts.BaseUrl)
	}
	return Portal{
		BaseUrl:   base,
		PageParam: opts.PageParam,
		Selectors: DefaultSelectors,
	}, nil
}

// SearchUrl is the first result page of a registration number search.
func (p Portal) SearchUrl(registrationId string) string {
	return fmt.Sprintf(
		"%s/cpopg/search.do?conversationId=&cbPesquisa=NUMOAB&dadosConsulta.valorConsulta=%s&cdForo=-1",
		p.origin(),
		url.QueryEscape(registrationId),
	)
}

// PageUrl is result page n (1-based) of a registration number search.
func (p Portal) PageUrl(registrationId string, n int) string {
	if n <= 1 {
		return p.SearchUrl(registrationId)
	}
	return fmt.Sprintf("%s&%s=%s", p.SearchUrl(registrationId), p.PageParam, strconv.Itoa(n))
}

func (p Portal) origin() string {
	return fmt.Sprintf("%s://%s", p.BaseUrl.Scheme, p.BaseUrl.Host)
}
