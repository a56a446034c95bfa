package db

import (
	"context"
	"database/sql"
)

const countCases = `-- name: CountCases :one
select count(*) from processos
`

func (q *Queries) CountCases(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCases)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countDocuments = `-- name: CountDocuments :one
select count(*) from documents
where case_key = ?
`

func (q *Queries) CountDocuments(ctx context.Context, caseKey string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDocuments, caseKey)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const hasDocument = `-- name: HasDocument :one
select exists(
    select 1 from documents
    where case_key = ? and doc_type = ? and doc_id = ?
)
`

type HasDocumentParams struct {
	CaseKey string
	DocType string
	DocID   string
}

func (q *Queries) HasDocument(ctx context.Context, arg HasDocumentParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, hasDocument, arg.CaseKey, arg.DocType, arg.DocID)
	var column_1 int64
	err := row.Scan(&column_1)
	return column_1, err
}

const insertCase = `-- name: InsertCase :execrows
insert or ignore into processos (
    oab, numero_processo, advogado, classe_processo, assunto,
    data_recebimento, vara, link_processo
) values (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertCaseParams struct {
	Oab             string
	NumeroProcesso  string
	Advogado        sql.NullString
	ClasseProcesso  string
	Assunto         string
	DataRecebimento sql.NullString
	Vara            sql.NullString
	LinkProcesso    sql.NullString
}

func (q *Queries) InsertCase(ctx context.Context, arg InsertCaseParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertCase,
		arg.Oab,
		arg.NumeroProcesso,
		arg.Advogado,
		arg.ClasseProcesso,
		arg.Assunto,
		arg.DataRecebimento,
		arg.Vara,
		arg.LinkProcesso,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertDocument = `-- name: InsertDocument :execrows
insert or ignore into documents (
    doc_uuid, case_key, doc_type, doc_id, original_url,
    download_date, pages, content
) values (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertDocumentParams struct {
	DocUuid      string
	CaseKey      string
	DocType      string
	DocID        string
	OriginalUrl  string
	DownloadDate string
	Pages        int64
	Content      []byte
}

func (q *Queries) InsertDocument(ctx context.Context, arg InsertDocumentParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertDocument,
		arg.DocUuid,
		arg.CaseKey,
		arg.DocType,
		arg.DocID,
		arg.OriginalUrl,
		arg.DownloadDate,
		arg.Pages,
		arg.Content,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listCasesByOab = `-- name: ListCasesByOab :many
select id, oab, numero_processo, advogado, classe_processo, assunto, data_recebimento, vara, link_processo from processos
where oab = ?
order by id
`

func (q *Queries) ListCasesByOab(ctx context.Context, oab string) ([]Processo, error) {
	rows, err := q.db.QueryContext(ctx, listCasesByOab, oab)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Processo
	for rows.Next() {
		var i Processo
		if err := rows.Scan(
			&i.ID,
			&i.Oab,
			&i.NumeroProcesso,
			&i.Advogado,
			&i.ClasseProcesso,
			&i.Assunto,
			&i.DataRecebimento,
			&i.Vara,
			&i.LinkProcesso,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
