package advisor

import "regexp"

// Context tags in precedence order.
const (
	TagSpending   = "spending"
	TagSaving     = "saving"
	TagInvestment = "investment"
	TagDebt       = "debt"
	TagIncome     = "income"
	TagGeneral    = "general"
)

type tagPattern struct {
	tag     string
	pattern *regexp.Regexp
}

var tagPatterns = []tagPattern{
	{TagSpending, regexp.MustCompile(`(?i)\b(spend(s|ing)?|spent|expenses?|buy(ing)?|bought|purchas(e|es|ed|ing)|shopping|budget(s|ing)?|bills?)\b`)},
	{TagSaving, regexp.MustCompile(`(?i)\b(sav(e|es|ed|ing|ings)|retire(d|ment)?|emergency fund|nest egg)\b`)},
	{TagInvestment, regexp.MustCompile(`(?i)\b(invest(s|ed|ing|ment|ments|or|ors)?|stocks?|bonds?|portfolio|shares|dividends?|etfs?|index funds?|mutual funds?)\b`)},
	{TagDebt, regexp.MustCompile(`(?i)\b(debts?|loans?|mortgages?|credit cards?|owe[sd]?|owing|borrow(s|ed|ing)?|repay(s|ing|ment)?)\b`)},
	{TagIncome, regexp.MustCompile(`(?i)\b(income|salary|salaries|wages?|pensions?|earn(s|ed|ing|ings)?|paychecks?|social security)\b`)},
}

// ContextTags returns the financial topics mentioned in message, in fixed
// precedence order. A message matching nothing yields ["general"].
func ContextTags(message string) []string {
	tags := make([]string, 0, len(tagPatterns))
	for _, p := range tagPatterns {
		if p.pattern.MatchString(message) {
			tags = append(tags, p.tag)
		}
	}
	if len(tags) == 0 {
		return []string{TagGeneral}
	}
	return tags
}
