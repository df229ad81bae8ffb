package domain

// Stats are per-status process counts for a tenant.
type Stats struct {
	Total     int `json:"total"`
	Cadastro  int `json:"cadastro"`
	Triagem   int `json:"triagem"`
	Analise   int `json:"analise"`
	Concluido int `json:"concluido"`
}

// StatsFromCounts folds per-status counts into Stats. Unknown statuses are
// ignored.
func StatsFromCounts(counts map[ProcessStatus]int) Stats {
	s := Stats{
		Cadastro:  counts[ProcessStatusCadastro],
		Triagem:   counts[ProcessStatusTriagem],
		Analise:   counts[ProcessStatusAnalise],
		Concluido: counts[ProcessStatusConcluido],
	}
	s.Total = s.Cadastro + s.Triagem + s.Analise + s.Concluido
	return s
}
