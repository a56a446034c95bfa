package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"
	"esaj-crawler/internal/store/db"
)

// SQLStore keeps cases in one shared `processos` table and documents in one
// `documents` table per case key. With a local target every case key gets its own
// database file under <target>/documents, a libsql url keeps everything in one database.
//
// Databases are opened for each write and closed right after, a single lock serializes
// them since sqlite allows one writer at a time.
type SQLStore struct {
	target string
	tel    telemetry.API

	mu sync.Mutex
}

func NewSQLStore(target string, tel telemetry.API) *SQLStore {
	return &SQLStore{
		target: target,
		tel:    telemetry.NewScopedAPI("sql_store", tel),
	}
}

func (s *SQLStore) Location() string {
	return s.target
}

func (s *SQLStore) casesDsn() string {
	if db.IsRemote(s.target) {
		return s.target
	}
	return filepath.Join(s.target, "processos.db")
}

func (s *SQLStore) documentsDsn(caseKey string) string {
	if db.IsRemote(s.target) {
		return s.target
	}
	return filepath.Join(s.target, "documents", caseKey+".db")
}

func (s *SQLStore) withDB(ctx context.Context, dsn string, fn func(database *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	database, err := db.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", model.ErrPersistence, dsn, err)
	}
	defer database.Close()

	err = fn(database)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func caseParams(rec model.CaseRecord) db.InsertCaseParams {
	return db.InsertCaseParams{
		Oab:             rec.RegistrationID,
		NumeroProcesso:  rec.CaseNumber,
		Advogado:        nullable(rec.AdvocateName),
		ClasseProcesso:  rec.CaseClass,
		Assunto:         rec.Subject,
		DataRecebimento: nullable(rec.ReceivedDate),
		Vara:            nullable(rec.Court),
		LinkProcesso:    nullable(rec.CaseLink),
	}
}

func (s *SQLStore) PersistCase(ctx context.Context, rec model.CaseRecord) error {
	_, err := s.PersistCases(ctx, []model.CaseRecord{rec})
	return err
}

func (s *SQLStore) PersistCases(ctx context.Context, recs []model.CaseRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withDB(ctx, s.casesDsn(), func(database *sql.DB) error {
		err := db.InTx(ctx, db.NewMakeTx(database), func(tx *db.Queries) error {
			for _, rec := range recs {
				n, err := tx.InsertCase(ctx, caseParams(rec))
				if err != nil {
					return fmt.Errorf("insert case %s: %w", rec.CaseNumber, err)
				}
				inserted += int(n)
			}
			return nil
		})
		if err != nil {
			inserted = 0
			return fmt.Errorf("persist batch: %w", err)
		}
		return nil
	})
	if err != nil {
		s.tel.ReportBroken(report_store_case, err, len(recs))
		return 0, err
	}
	s.tel.ReportDebug("persisted cases", len(recs), inserted)
	return inserted, nil
}

// Cases lists the stored cases of one registration number.
func (s *SQLStore) Cases(ctx context.Context, registrationId string) ([]model.CaseRecord, error) {
	var out []model.CaseRecord
	err := s.withDB(ctx, s.casesDsn(), func(database *sql.DB) error {
		rows, err := db.New(database).ListCasesByOab(ctx, registrationId)
		if err != nil {
			return err
		}
		for _, r := range rows {
			rec := model.CaseRecord{
				RegistrationID: r.Oab,
				CaseNumber:     r.NumeroProcesso,
				CaseClass:      r.ClasseProcesso,
				Subject:        r.Assunto,
			}
			if r.Advogado.Valid {
				rec.AdvocateName = model.Str(r.Advogado.String)
			}
			if r.DataRecebimento.Valid {
				rec.ReceivedDate = model.Str(r.DataRecebimento.String)
			}
			if r.Vara.Valid {
				rec.Court = model.Str(r.Vara.String)
			}
			if r.LinkProcesso.Valid {
				rec.CaseLink = model.Str(r.LinkProcesso.String)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (s *SQLStore) CountCases(ctx context.Context) (int64, error) {
	var count int64
	err := s.withDB(ctx, s.casesDsn(), func(database *sql.DB) error {
		var err error
		count, err = db.New(database).CountCases(ctx)
		return err
	})
	return count, err
}

// documentsExist is false for a local case whose documents database was never created,
// reads check it first since opening a database creates its file.
func (s *SQLStore) documentsExist(caseKey string) (bool, error) {
	if db.IsRemote(s.target) {
		return true, nil
	}
	_, err := os.Stat(s.documentsDsn(caseKey))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) CountDocuments(ctx context.Context, caseNumber string) (int64, error) {
	caseKey := oab.CaseKey(caseNumber)
	exists, err := s.documentsExist(caseKey)
	if err != nil || !exists {
		return 0, err
	}

	var count int64
	err = s.withDB(ctx, s.documentsDsn(caseKey), func(database *sql.DB) error {
		var err error
		count, err = db.New(database).CountDocuments(ctx, caseKey)
		return err
	})
	return count, err
}

func (s *SQLStore) HasDocument(ctx context.Context, caseNumber, docType, docId string) (bool, error) {
	caseKey := oab.CaseKey(caseNumber)
	exists, err := s.documentsExist(caseKey)
	if err != nil || !exists {
		return false, err
	}

	var found int64
	err = s.withDB(ctx, s.documentsDsn(caseKey), func(database *sql.DB) error {
		var err error
		found, err = db.New(database).HasDocument(ctx, db.HasDocumentParams{
			CaseKey: caseKey,
			DocType: docType,
			DocID:   docId,
		})
		return err
	})
	return found != 0, err
}

func (s *SQLStore) PersistDocument(ctx context.Context, doc model.DocumentRecord) error {
	caseKey := oab.CaseKey(doc.CaseNumber)
	var inserted int64
	err := s.withDB(ctx, s.documentsDsn(caseKey), func(database *sql.DB) error {
		var err error
		inserted, err = db.New(database).InsertDocument(ctx, db.InsertDocumentParams{
			DocUuid:      doc.DocUUID,
			CaseKey:      caseKey,
			DocType:      doc.DocType,
			DocID:        doc.DocID,
			OriginalUrl:  doc.SourceURL,
			DownloadDate: doc.DownloadedAt.UTC().Format(time.RFC3339),
			Pages:        int64(doc.Pages),
			Content:      doc.Content,
		})
		return err
	})
	if err != nil {
		s.tel.ReportBroken(report_store_document, err, doc.CaseNumber, doc.DocID)
		return err
	}
	if inserted == 0 {
		return fmt.Errorf("%w: %s %s_%s", model.ErrAlreadyStored, caseKey, doc.DocType, doc.DocID)
	}
	return nil
}
