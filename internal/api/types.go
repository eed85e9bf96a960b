package api

// Identity describes the authenticated user as returned by the service.
type Identity struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"full_name"`
}

// Account is an immutable snapshot of one bank account. It is replaced by
// re-fetch, never mutated in place.
type Account struct {
	AccountID      int64   `json:"account_id"`
	Number         string  `json:"account_number"`
	Label          string  `json:"account_label"`
	Type           string  `json:"account_type"`
	Currency       string  `json:"currency"`
	CurrentBalance float64 `json:"current_balance"`
	DateOpened     string  `json:"date_opened,omitempty"`
}

// Account types as reported by the service. The set is open: anything else
// renders with a generic card icon.
const (
	AccountTypeChecking = "courant"
	AccountTypeSavings  = "épargne"
	AccountTypeBusiness = "entreprise"
)

// Transaction directions.
const (
	DirectionDebit  = "D"
	DirectionCredit = "C"
)

// Transaction is an immutable snapshot of one booked transaction, ordered by
// date descending as returned by the service.
type Transaction struct {
	TransactionID int64   `json:"transaction_id"`
	Date          string  `json:"transaction_date"`
	Description   string  `json:"description"`
	Type          string  `json:"transaction_type,omitempty"`
	Amount        float64 `json:"amount"`
	Direction     string  `json:"debit_credit_indicator"`
	PieceNumber   string  `json:"piece_number,omitempty"`
	ValueDate     string  `json:"value_date,omitempty"`
}

// ChatReply is the assistant's answer to one message.
type ChatReply struct {
	Response       string         `json:"response"`
	Intent         string         `json:"intent,omitempty"`
	Entities       map[string]any `json:"entities,omitempty"`
	ActionRequired bool           `json:"action_required,omitempty"`
}

type checkSessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        int64  `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User Identity `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type accountsResponse struct {
	Accounts     []Account `json:"accounts"`
	TotalBalance float64   `json:"total_balance"`
	Currency     string    `json:"currency"`
}

type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type chatRequest struct {
	Message string `json:"message"`
}
