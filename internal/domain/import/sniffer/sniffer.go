// Package sniffer detects the layout of bank statement exports: text encoding,
// delimiter, the header row below any metadata lines, and the regional dialect
// of dates and amounts.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// maxHeaderSearch is how many leading lines may hold account metadata.
const maxHeaderSearch = 20

// Header keywords in normalized form (lowercase, no accents).
var headerKeywords = []string{
	// French
	"date", "libelle", "montant", "debit", "credit", "categorie", "operation", "solde",
	// English
	"description", "amount", "category", "label", "memo", "payee", "balance",
}

// FileConfig is the detected layout of a delimited file.
type FileConfig struct {
	Delimiter   rune
	SkipLines   int // metadata lines before the header row
	Headers     []string
	Fingerprint string // SHA256 of the normalized headers, stable per bank export format
	SampleRows  [][]string
}

// DetectOptions overrides parts of the detection.
type DetectOptions struct {
	// HeaderRowIndex is the 0-based header line. -1 auto-detects.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// Decode returns data as UTF-8 without a byte order mark. Input that is not
// valid UTF-8 is read as Windows-1252, the encoding French banks export in.
func Decode(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// NormalizeHeader folds a header for comparison: trimmed, lowercase, accents
// removed and inner whitespace collapsed ("Libellé  simplifié" -> "libelle simplifie").
func NormalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// DetectConfig analyzes a delimited file and returns its configuration.
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a delimited file with optional overrides.
// data must already be decoded (see Decode).
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		delimiter, _ = detectDelimiter(cleanLine(lines[skipLines]))
		if delimiter == 0 {
			return nil, ErrInvalidDelimiter
		}
	} else {
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
	}
	if opts != nil && opts.Delimiter != 0 {
		delimiter = opts.Delimiter
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines])))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  sampleRows(lines[skipLines+1:], delimiter, 5),
	}, nil
}

// findHeaderRow picks the line most likely to be the header: lines naming
// known columns win, wider lines break ties.
func findHeaderRow(lines []string) (rune, int, error) {
	bestIndex, bestScore := -1, 0
	fallbackIndex, fallbackCount := -1, 0
	var bestDelimiter, fallbackDelimiter rune

	for i, line := range lines {
		if i > maxHeaderSearch {
			break
		}
		line = cleanLine(line)
		if line == "" {
			continue
		}
		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		matches := 0
		fields := strings.FieldsFunc(NormalizeHeader(line), func(r rune) bool { return r == delimiter || r == '"' })
		for _, f := range fields {
			for _, kw := range headerKeywords {
				if strings.Contains(f, kw) {
					matches++
					break
				}
			}
		}

		if matches > 0 {
			if score := matches*10 + count; score > bestScore {
				bestIndex, bestScore, bestDelimiter = i, score, delimiter
			}
		} else if count > fallbackCount {
			fallbackIndex, fallbackCount, fallbackDelimiter = i, count, delimiter
		}
	}

	if bestIndex >= 0 {
		return bestDelimiter, bestIndex, nil
	}
	if fallbackIndex >= 0 && fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string) string {
	line = strings.TrimRight(line, "\r")
	return strings.TrimSpace(strings.TrimPrefix(line, "\uFEFF"))
}

// detectDelimiter returns the most frequent candidate outside quotes.
func detectDelimiter(line string) (rune, int) {
	counts := make(map[rune]int, 4)
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ';' || r == '\t' || r == ',' || r == '|'):
			counts[r]++
		}
	}

	best, bestCount := rune(0), 0
	for _, d := range []rune{';', '\t', ',', '|'} {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best, bestCount
}

// Fingerprint hashes the normalized header names.
func Fingerprint(headers []string) string {
	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, NormalizeHeader(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

func sampleRows(lines []string, delimiter rune, maxRows int) [][]string {
	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows := make([][]string, 0, maxRows)
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, record)
	}
	return rows
}
