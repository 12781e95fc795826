package domain

import "github.com/shopspring/decimal"

// Scale é a precisão (casas decimais) de todos os valores monetários
const Scale int32 = 6

// Epsilon é o limiar de precisão compartilhado por split, casamento e status
var Epsilon = decimal.New(1, -Scale)

// Round arredonda para Scale casas
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// ApproxEqual compara dois valores dentro de Epsilon
func ApproxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// IsDust indica valor abaixo do limiar de precisão
func IsDust(d decimal.Decimal) bool { return d.Abs().LessThan(Epsilon) }

// Sum soma uma lista de valores
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
