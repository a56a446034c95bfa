package model

import "time"

// Cookie is a name/value pair read from a rendering session.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// ResolvedDocument is a directly fetchable pdf url plus the session cookies that were
// valid right after the viewer page was rendered.
type ResolvedDocument struct {
	Case           CaseRecord
	ViewerHref     string
	AbsoluteURL    string
	SessionCookies []Cookie
}

// DocumentRecord is one downloaded pdf tied to one case.
type DocumentRecord struct {
	DocUUID        string
	RegistrationID string
	CaseNumber     string
	DocType        string
	DocID          string
	SourceURL      string
	DownloadedAt   time.Time
	Pages          int
	Content        []byte
}
