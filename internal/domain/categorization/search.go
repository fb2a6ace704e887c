package categorization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// OperationDocument is the searchable form of an operation.
type OperationDocument struct {
	ID          string   `json:"id"`
	Description string   `json:"description"` // Full text
	Account     string   `json:"account"`     // Account name
	AccountID   string   `json:"account_id"`
	Category    string   `json:"category"`     // Category names, space separated
	CategoryIDs []string `json:"category_ids"` // One keyword per allocated category
	Date        string   `json:"date"`         // YYYY-MM-DD
	Month       string   `json:"month"`        // Budget month, YYYY-MM
	Amount      float64  `json:"amount"`
}

// SearchResult is a search hit with its relevance score.
type SearchResult struct {
	Document    OperationDocument
	Score       float64 // Relevance score from Bleve
	OperationID uuid.UUID
}

// SearchIndex provides full-text search over the operations of a snapshot using Bleve.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string // Path to index storage (empty for in-memory)
}

// NewSearchIndex creates a search index.
// If path is empty, creates an in-memory index; otherwise creates or opens a persistent one.
func NewSearchIndex(path string) (*SearchIndex, error) {
	si := &SearchIndex{path: path}

	var index bleve.Index
	var err error

	indexMapping := buildIndexMapping()

	if path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", mkdirErr)
		}
		index, err = bleve.New(path, indexMapping)
	} else {
		index, err = bleve.Open(path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	si.index = index
	return si, nil
}

// buildIndexMapping creates the Bleve index mapping for operation documents
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("account", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("account_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("category", textFieldMapping)
	docMapping.AddFieldMappingsAt("category_ids", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("date", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("month", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("amount", numericFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	indexMapping.DefaultField = "description"

	return indexMapping
}

// NewOperationDocument flattens an operation with the names found in snap.
func NewOperationDocument(snap *ledger.Snapshot, op ledger.Operation) OperationDocument {
	doc := OperationDocument{
		ID:          op.ID.String(),
		Description: op.Description,
		AccountID:   op.AccountID.String(),
		Date:        op.Date.Format("2006-01-02"),
		Month:       op.BudgetMonth().String(),
	}
	if acc, ok := snap.Account(op.AccountID); ok {
		doc.Account = acc.Name
	}
	doc.Amount, _ = op.Total.ToDecimal().Float64()

	var names []string
	for _, a := range op.Allocations {
		if a.CategoryID == nil {
			continue
		}
		doc.CategoryIDs = append(doc.CategoryIDs, a.CategoryID.String())
		if c, ok := snap.Category(*a.CategoryID); ok {
			names = append(names, c.Name)
		}
	}
	doc.Category = strings.Join(names, " ")
	return doc
}

// IndexSnapshot replaces the index content with every operation of snap.
func (si *SearchIndex) IndexSnapshot(snap *ledger.Snapshot) error {
	if err := si.Clear(); err != nil {
		return err
	}

	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	batch := si.index.NewBatch()
	for _, op := range snap.Operations() {
		doc := NewOperationDocument(snap, op)
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index operation %s: %w", doc.ID, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search performs a full-text search on descriptions with one edit of typo tolerance.
func (si *SearchIndex) Search(text string, limit int) ([]SearchResult, error) {
	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("description")
	matchQuery.SetFuzziness(1)
	return si.run(matchQuery, limit, 10, "search")
}

// SearchWithPrefix performs an autocomplete style prefix search on descriptions.
func (si *SearchIndex) SearchWithPrefix(prefix string, limit int) ([]SearchResult, error) {
	prefixQuery := bleve.NewPrefixQuery(strings.ToLower(prefix))
	prefixQuery.SetField("description")
	return si.run(prefixQuery, limit, 10, "prefix search")
}

// SearchFuzzy performs a fuzzy term search with configurable edit distance (0-2).
func (si *SearchIndex) SearchFuzzy(term string, fuzziness int, limit int) ([]SearchResult, error) {
	fuzziness = max(0, min(fuzziness, 2)) // Bleve max is 2

	fuzzyQuery := bleve.NewFuzzyQuery(strings.ToLower(term))
	fuzzyQuery.SetField("description")
	fuzzyQuery.SetFuzziness(fuzziness)
	return si.run(fuzzyQuery, limit, 10, "fuzzy search")
}

// SearchAdvanced runs a query string with boolean logic and field scoping.
// Example: "+carrefour -month:2024-01"
func (si *SearchIndex) SearchAdvanced(queryString string, limit int) ([]SearchResult, error) {
	return si.run(bleve.NewQueryStringQuery(queryString), limit, 10, "advanced search")
}

// SearchByCategory finds the operations with an allocation to categoryID.
func (si *SearchIndex) SearchByCategory(categoryID uuid.UUID, limit int) ([]SearchResult, error) {
	termQuery := bleve.NewTermQuery(categoryID.String())
	termQuery.SetField("category_ids")
	return si.run(termQuery, limit, 100, "category search")
}

// SearchInMonth restricts a full-text search to one budget month.
func (si *SearchIndex) SearchInMonth(text string, month ledger.Month, limit int) ([]SearchResult, error) {
	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("description")
	matchQuery.SetFuzziness(1)

	monthQuery := bleve.NewTermQuery(month.String())
	monthQuery.SetField("month")

	return si.run(bleve.NewConjunctionQuery(matchQuery, monthQuery), limit, 10, "month search")
}

func (si *SearchIndex) run(q query.Query, limit, defaultLimit int, what string) ([]SearchResult, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"*"}

	searchResults, err := si.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", what, err)
	}
	return convertResults(searchResults), nil
}

// convertResults converts Bleve search results to our SearchResult type
func convertResults(searchResults *bleve.SearchResult) []SearchResult {
	results := make([]SearchResult, 0, len(searchResults.Hits))

	for _, hit := range searchResults.Hits {
		doc := OperationDocument{ID: hit.ID}

		if v, ok := hit.Fields["description"].(string); ok {
			doc.Description = v
		}
		if v, ok := hit.Fields["account"].(string); ok {
			doc.Account = v
		}
		if v, ok := hit.Fields["account_id"].(string); ok {
			doc.AccountID = v
		}
		if v, ok := hit.Fields["category"].(string); ok {
			doc.Category = v
		}
		switch v := hit.Fields["category_ids"].(type) {
		case string:
			doc.CategoryIDs = []string{v}
		case []interface{}:
			for _, id := range v {
				if s, ok := id.(string); ok {
					doc.CategoryIDs = append(doc.CategoryIDs, s)
				}
			}
		}
		if v, ok := hit.Fields["date"].(string); ok {
			doc.Date = v
		}
		if v, ok := hit.Fields["month"].(string); ok {
			doc.Month = v
		}
		if v, ok := hit.Fields["amount"].(float64); ok {
			doc.Amount = v
		}

		result := SearchResult{Document: doc, Score: hit.Score}
		if id, err := uuid.Parse(hit.ID); err == nil {
			result.OperationID = id
		}
		results = append(results, result)
	}

	return results
}

// Clear removes all documents from the index
func (si *SearchIndex) Clear() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	count, err := si.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return nil
	}

	searchRequest := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	searchRequest.Size = int(count)

	searchResults, err := si.index.Search(searchRequest)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	batch := si.index.NewBatch()
	for _, hit := range searchResults.Hits {
		batch.Delete(hit.ID)
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the index
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if si.index != nil {
		return si.index.Close()
	}
	return nil
}

// DocumentCount returns the number of documents in the index
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	return si.index.DocCount()
}
