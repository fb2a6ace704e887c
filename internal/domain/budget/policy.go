package budget

import "github.com/FACorreiaa/comptine/pkg/money"

// SavePolicy decides where a saved leftover goes.
type SavePolicy interface {
	Route(rec Record, amount *money.Money) Transfer
}

// ExternalSavings treats saved leftovers as leaving the ledger.
type ExternalSavings struct{}

func (ExternalSavings) Route(rec Record, amount *money.Money) Transfer {
	return Transfer{
		CategoryID:  rec.CategoryID,
		Category:    rec.Category,
		Amount:      amount,
		Destination: "external savings",
		External:    true,
	}
}

// AccountSavings routes saved leftovers to a named ledger account. The
// transfer is a suggestion; no operation is created.
type AccountSavings struct {
	Account string
}

func (p AccountSavings) Route(rec Record, amount *money.Money) Transfer {
	return Transfer{
		CategoryID:  rec.CategoryID,
		Category:    rec.Category,
		Amount:      amount,
		Destination: p.Account,
	}
}

// PolicyFromConfig maps configuration values to a SavePolicy.
func PolicyFromConfig(name, account string) SavePolicy {
	if name == "account" && account != "" {
		return AccountSavings{Account: account}
	}
	return ExternalSavings{}
}
