package models

// ContractType — вид контракта.
type ContractType string

const (
	ContractLinear    ContractType = "linear"
	ContractInverse   ContractType = "inverse"
	ContractPerpetual ContractType = "perpetual"
	ContractFutures   ContractType = "futures"
)

// SymbolDescriptor — снимок инструмента из каталога биржи. Неизменяемый в течение цикла скана.
type SymbolDescriptor struct {
	Symbol       string
	ContractType ContractType
	Underlying   string
	QuoteAsset   string
	Active       bool

	TickSize float64
	MinPrice float64
	MaxPrice float64
}

// ActiveOnly фильтрует торгуемые инструменты и убирает дубли по Symbol (первый побеждает).
func ActiveOnly(in []SymbolDescriptor) []SymbolDescriptor {
	seen := make(map[string]struct{}, len(in))
	out := make([]SymbolDescriptor, 0, len(in))
	for _, d := range in {
		if !d.Active || d.Symbol == "" {
			continue
		}
		if _, dup := seen[d.Symbol]; dup {
			continue
		}
		seen[d.Symbol] = struct{}{}
		out = append(out, d)
	}
	return out
}
