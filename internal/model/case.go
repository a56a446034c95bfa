package model

// CaseRecord is one case found under one registration identifier. The json keys are the
// ones the batch files have always used, the documents pass reads them back.
type CaseRecord struct {
	RegistrationID string  `json:"oab"`
	AdvocateName   *string `json:"advogado"`
	CaseNumber     string  `json:"numero_processo"`
	CaseClass      string  `json:"classe_processo"`
	Subject        string  `json:"assunto"`
	ReceivedDate   *string `json:"data_recebimento"`
	Court          *string `json:"vara"`
	CaseLink       *string `json:"link_processo"`
}

// Str returns a pointer to s, for building optional fields.
func Str(s string) *string {
	return &s
}

// Deref returns the value of an optional field or "" when it is absent.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
