package db

import (
	"database/sql"
)

type Document struct {
	ID           int64
	DocUuid      string
	CaseKey      string
	DocType      string
	DocID        string
	OriginalUrl  string
	DownloadDate string
	Pages        int64
	Content      []byte
}

type Processo struct {
	ID              int64
	Oab             string
	NumeroProcesso  string
	Advogado        sql.NullString
	ClasseProcesso  string
	Assunto         string
	DataRecebimento sql.NullString
	Vara            sql.NullString
	LinkProcesso    sql.NullString
}
