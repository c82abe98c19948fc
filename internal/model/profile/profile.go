package profile

import "time"

// Profile captures one client's financial situation and advisory history.
type Profile struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Age                 *int               `json:"age"`
	Income              *float64           `json:"income"`
	Savings             *float64           `json:"savings"`
	Debts               *float64           `json:"debts"`
	Investments         *string            `json:"investments"`
	FinancialGoals      []string           `json:"financial_goals"`
	SpendingData        []SpendingEntry    `json:"spending_data"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
}

// SpendingEntry is a single dated expense.
type SpendingEntry struct {
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// ConversationTurn is one user message and the advisor reply to it.
// Seq is assigned by the store and increases by one per append.
type ConversationTurn struct {
	Seq       int64     `json:"seq"`
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (p Profile) Clone() Profile {
	out := p
	if p.Age != nil {
		v := *p.Age
		out.Age = &v
	}
	out.Income = cloneFloat(p.Income)
	out.Savings = cloneFloat(p.Savings)
	out.Debts = cloneFloat(p.Debts)
	if p.Investments != nil {
		v := *p.Investments
		out.Investments = &v
	}
	out.FinancialGoals = append([]string{}, p.FinancialGoals...)
	out.SpendingData = append([]SpendingEntry{}, p.SpendingData...)
	out.ConversationHistory = append([]ConversationTurn{}, p.ConversationHistory...)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// NextTurn stamps turn with the sequence and timestamp that follow history.
// Timestamps never go backwards relative to the previous turn.
func NextTurn(history []ConversationTurn, turn ConversationTurn) ConversationTurn {
	turn.Timestamp = turn.Timestamp.UTC()
	if len(history) == 0 {
		turn.Seq = 1
		return turn
	}
	last := history[len(history)-1]
	turn.Seq = last.Seq + 1
	if turn.Timestamp.Before(last.Timestamp) {
		turn.Timestamp = last.Timestamp
	}
	return turn
}
