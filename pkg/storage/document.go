package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// FormatVersion is written to every ledger file.
const FormatVersion = 1

const dateLayout = "2006-01-02"

var (
	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported ledger file version")
	// ErrMalformed wraps decoding failures of an otherwise readable file.
	ErrMalformed = errors.New("malformed ledger file")
)

// ============================================================================
// File schema
// ============================================================================

type document struct {
	Version    int           `yaml:"version"`
	State      stateDoc      `yaml:"state"`
	Categories []categoryDoc `yaml:"categories,omitempty"`
	Accounts   []accountDoc  `yaml:"accounts,omitempty"`
	Rules      []ruleDoc     `yaml:"rules,omitempty"`
}

type stateDoc struct {
	Currency    string `yaml:"currency"`
	BudgetYear  int    `yaml:"budget_year,omitempty"`
	BudgetMonth int    `yaml:"budget_month,omitempty"`
}

type categoryDoc struct {
	Name              string        `yaml:"name"`
	IsIncome          bool          `yaml:"is_income,omitempty"`
	BudgetLimit       string        `yaml:"budget_limit,omitempty"`
	LeftoverDecisions []decisionDoc `yaml:"leftover_decisions,omitempty"`
}

// decisionDoc also accepts the older action/amount pair.
type decisionDoc struct {
	Year         int    `yaml:"year"`
	Month        int    `yaml:"month"`
	Disposition  string `yaml:"disposition,omitempty"`
	SaveAmount   string `yaml:"save_amount,omitempty"`
	ReportAmount string `yaml:"report_amount,omitempty"`
	Action       string `yaml:"action,omitempty"`
	Amount       string `yaml:"amount,omitempty"`
}

type accountDoc struct {
	Name       string         `yaml:"name"`
	Operations []operationDoc `yaml:"operations,omitempty"`
}

type operationDoc struct {
	Date        string          `yaml:"date"`
	Amount      string          `yaml:"amount"`
	Description string          `yaml:"description"`
	Category    string          `yaml:"category,omitempty"`
	Allocations []allocationDoc `yaml:"allocations,omitempty"`
	BudgetDate  string          `yaml:"budget_date,omitempty"`
}

type allocationDoc struct {
	Category string `yaml:"category,omitempty"`
	Amount   string `yaml:"amount"`
}

type ruleDoc struct {
	Category          string `yaml:"category"`
	DescriptionPrefix string `yaml:"description_prefix"`
}

// ============================================================================
// Encoding
// ============================================================================

// Encode renders a snapshot as a YAML ledger file. View state such as the
// displayed budget month is carried in month and omitted when zero.
func Encode(snap *ledger.Snapshot, month ledger.Month) ([]byte, error) {
	doc := document{
		Version: FormatVersion,
		State: stateDoc{
			Currency:    snap.Currency(),
			BudgetYear:  month.Year,
			BudgetMonth: int(month.Month),
		},
	}

	names := make(map[uuid.UUID]string)
	decisions := make(map[uuid.UUID][]decisionDoc)
	for _, d := range snap.LeftoverDecisions() {
		dd := decisionDoc{
			Year:        d.Month.Year,
			Month:       int(d.Month.Month),
			Disposition: d.Disposition.String(),
		}
		if d.Disposition == ledger.DispositionSplit {
			dd.SaveAmount = d.SaveAmount.String()
			dd.ReportAmount = d.ReportAmount.String()
		}
		decisions[d.CategoryID] = append(decisions[d.CategoryID], dd)
	}

	for _, c := range snap.Categories() {
		names[c.ID] = c.Name
		cd := categoryDoc{
			Name:              c.Name,
			IsIncome:          c.IsIncome,
			LeftoverDecisions: decisions[c.ID],
		}
		if c.BudgetLimit != nil {
			cd.BudgetLimit = c.BudgetLimit.String()
		}
		doc.Categories = append(doc.Categories, cd)
	}

	for _, a := range snap.Accounts() {
		ad := accountDoc{Name: a.Name}
		for _, op := range snap.OperationsForAccount(a.ID) {
			ad.Operations = append(ad.Operations, encodeOperation(op, names))
		}
		doc.Accounts = append(doc.Accounts, ad)
	}

	for _, r := range snap.Rules() {
		doc.Rules = append(doc.Rules, ruleDoc{Category: names[r.CategoryID], DescriptionPrefix: r.Prefix})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return out, nil
}

func encodeOperation(op ledger.Operation, names map[uuid.UUID]string) operationDoc {
	od := operationDoc{
		Date:        op.Date.Format(dateLayout),
		Amount:      op.Total.String(),
		Description: op.Description,
	}
	if !op.BudgetDate.Equal(op.Date) {
		od.BudgetDate = op.BudgetDate.Format(dateLayout)
	}
	if op.IsSplit() {
		for _, a := range op.Allocations {
			ad := allocationDoc{Amount: a.Amount.String()}
			if a.CategoryID != nil {
				ad.Category = names[*a.CategoryID]
			}
			od.Allocations = append(od.Allocations, ad)
		}
		return od
	}
	if id := op.CategoryID(); id != nil {
		od.Category = names[*id]
	}
	return od
}

// ============================================================================
// Decoding
// ============================================================================

// Decode builds a store from a YAML ledger file. fallbackCurrency is used when
// the file does not name one. Rules whose category is unknown or whose prefix
// is empty are skipped, as are decisions without a valid month.
func Decode(data []byte, fallbackCurrency string) (*ledger.Store, ledger.Month, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ledger.Month{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Version > FormatVersion {
		return nil, ledger.Month{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	currency := doc.State.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	d := &decoder{store: ledger.NewStore(currency), currency: currency, ids: make(map[string]uuid.UUID)}

	var view ledger.Month
	if doc.State.BudgetYear > 0 && doc.State.BudgetMonth >= 1 && doc.State.BudgetMonth <= 12 {
		view = ledger.NewMonth(doc.State.BudgetYear, time.Month(doc.State.BudgetMonth))
	}

	for i, cd := range doc.Categories {
		if err := d.category(cd); err != nil {
			return nil, view, fmt.Errorf("category %d (%q): %w", i+1, cd.Name, err)
		}
	}
	for _, ad := range doc.Accounts {
		acc, err := d.store.AddAccount(ledger.Account{Name: ad.Name})
		if err != nil {
			return nil, view, fmt.Errorf("account %q: %w", ad.Name, err)
		}
		for j, od := range ad.Operations {
			if err := d.operation(acc.ID, od); err != nil {
				return nil, view, fmt.Errorf("account %q, operation %d: %w", ad.Name, j+1, err)
			}
		}
	}
	for _, rd := range doc.Rules {
		id, ok := d.ids[rd.Category]
		if !ok || rd.DescriptionPrefix == "" {
			continue
		}
		if err := d.store.InsertRule(len(d.store.Rules()), ledger.Rule{Prefix: rd.DescriptionPrefix, CategoryID: id}); err != nil {
			return nil, view, fmt.Errorf("rule %q: %w", rd.DescriptionPrefix, err)
		}
	}
	return d.store, view, nil
}

type decoder struct {
	store    *ledger.Store
	currency string
	ids      map[string]uuid.UUID
}

func (d *decoder) amount(s string) (*money.Money, error) {
	m, err := money.NewFromString(s, d.currency, false)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrMalformed, s, err)
	}
	return m, nil
}

func (d *decoder) optionalAmount(s string) (*money.Money, error) {
	if s == "" {
		return nil, nil
	}
	return d.amount(s)
}

func (d *decoder) category(cd categoryDoc) error {
	limit, err := d.optionalAmount(cd.BudgetLimit)
	if err != nil {
		return err
	}
	c, err := d.store.AddCategory(ledger.Category{Name: cd.Name, IsIncome: cd.IsIncome, BudgetLimit: limit})
	if err != nil {
		return err
	}
	d.ids[c.Name] = c.ID

	for _, dd := range cd.LeftoverDecisions {
		if dd.Year <= 0 || dd.Month < 1 || dd.Month > 12 {
			continue
		}
		dec, ok, err := d.decision(dd)
		if err != nil {
			return fmt.Errorf("leftover %04d-%02d: %w", dd.Year, dd.Month, err)
		}
		if !ok {
			continue
		}
		dec.CategoryID = c.ID
		dec.Month = ledger.NewMonth(dd.Year, time.Month(dd.Month))
		if _, _, err := d.store.PutLeftoverDecision(dec); err != nil {
			return err
		}
	}
	return nil
}

// decision resolves the disposition of a stored decision. Files without a
// disposition infer it from which amounts are set. ok is false for empty
// decisions.
func (d *decoder) decision(dd decisionDoc) (ledger.LeftoverDecision, bool, error) {
	if dd.Action != "" && dd.Disposition == "" {
		switch dd.Action {
		case "save":
			dd.SaveAmount = dd.Amount
		case "report":
			dd.ReportAmount = dd.Amount
		default:
			return ledger.LeftoverDecision{}, false, fmt.Errorf("%w: action %q", ErrMalformed, dd.Action)
		}
	}

	save, err := d.optionalAmount(dd.SaveAmount)
	if err != nil {
		return ledger.LeftoverDecision{}, false, err
	}
	report, err := d.optionalAmount(dd.ReportAmount)
	if err != nil {
		return ledger.LeftoverDecision{}, false, err
	}

	if dd.Disposition != "" {
		disp, ok := ledger.ParseDisposition(dd.Disposition)
		if !ok {
			return ledger.LeftoverDecision{}, false, fmt.Errorf("%w: disposition %q", ErrMalformed, dd.Disposition)
		}
		if disp == ledger.DispositionSplit {
			if save == nil {
				save = money.Zero(d.currency)
			}
			if report == nil {
				report = money.Zero(d.currency)
			}
		}
		return ledger.LeftoverDecision{Disposition: disp, SaveAmount: save, ReportAmount: report}, true, nil
	}

	hasSave := save != nil && !save.IsZero()
	hasReport := report != nil && !report.IsZero()
	switch {
	case hasSave && hasReport:
		return ledger.LeftoverDecision{Disposition: ledger.DispositionSplit, SaveAmount: save, ReportAmount: report}, true, nil
	case hasSave:
		return ledger.LeftoverDecision{Disposition: ledger.DispositionSave}, true, nil
	case hasReport:
		return ledger.LeftoverDecision{Disposition: ledger.DispositionReport}, true, nil
	}
	return ledger.LeftoverDecision{}, false, nil
}

func (d *decoder) operation(accountID uuid.UUID, od operationDoc) error {
	date, err := time.Parse(dateLayout, od.Date)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrMalformed, od.Date)
	}
	total, err := d.amount(od.Amount)
	if err != nil {
		return err
	}

	op := ledger.NewOperation(accountID, date, od.Description, total)
	if od.BudgetDate != "" {
		bd, err := time.Parse(dateLayout, od.BudgetDate)
		if err != nil {
			return fmt.Errorf("%w: budget date %q", ErrMalformed, od.BudgetDate)
		}
		op.BudgetDate = bd
	}

	switch {
	case len(od.Allocations) > 0:
		op.Allocations = make([]ledger.Allocation, 0, len(od.Allocations))
		for _, ad := range od.Allocations {
			amt, err := d.amount(ad.Amount)
			if err != nil {
				return err
			}
			id, err := d.categoryID(ad.Category)
			if err != nil {
				return err
			}
			op.Allocations = append(op.Allocations, ledger.Allocation{CategoryID: id, Amount: amt})
		}
	case od.Category != "":
		id, err := d.categoryID(od.Category)
		if err != nil {
			return err
		}
		op.Allocations = ledger.Categorized(*id, total)
	}

	_, err = d.store.AddOperation(op)
	return err
}

func (d *decoder) categoryID(name string) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	id, ok := d.ids[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ledger.ErrUnknownCategory, name)
	}
	return &id, nil
}
