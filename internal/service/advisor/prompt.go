package advisor

import (
	"strconv"
	"strings"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
)

const unknown = "unknown"

// Build assembles the completion prompt. It has no side effects and returns
// identical output for identical input.
func Build(p profile.Profile, message string, result analysis.Result, tags []string) string {
	var b strings.Builder

	b.WriteString("The elderly client (Name: ")
	b.WriteString(p.Name)
	b.WriteString(", Age: ")
	b.WriteString(formatInt(p.Age))
	b.WriteString(") said: '")
	b.WriteString(message)
	b.WriteString("'.\n\n")

	b.WriteString("Detected sentiment: ")
	b.WriteString(string(result.Label))
	b.WriteString(" (confidence ")
	b.WriteString(strconv.FormatFloat(result.Confidence, 'f', 2, 64))
	b.WriteString(")\n")

	b.WriteString("Financial context: ")
	if len(tags) == 0 {
		b.WriteString(TagGeneral)
	} else {
		b.WriteString(strings.Join(tags, ", "))
	}
	b.WriteString("\n\n")

	b.WriteString("User's financial profile:\n")
	b.WriteString("Income: ")
	b.WriteString(formatAmount(p.Income))
	b.WriteString(", Savings: ")
	b.WriteString(formatAmount(p.Savings))
	b.WriteString(", Debts: ")
	b.WriteString(formatAmount(p.Debts))
	b.WriteString("\nInvestments: ")
	if p.Investments != nil && strings.TrimSpace(*p.Investments) != "" {
		b.WriteString(*p.Investments)
	} else {
		b.WriteString(unknown)
	}
	b.WriteString("\nFinancial goals: ")
	if len(p.FinancialGoals) > 0 {
		b.WriteString(strings.Join(p.FinancialGoals, ", "))
	} else {
		b.WriteString("none stated")
	}
	b.WriteString("\n\n")

	b.WriteString("Provide an empathetic response and appropriate financial advice, ")
	b.WriteString("considering their emotional state, financial context, and profile information.")
	return b.String()
}

func formatInt(v *int) string {
	if v == nil {
		return unknown
	}
	return strconv.Itoa(*v)
}

func formatAmount(v *float64) string {
	if v == nil {
		return unknown
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
