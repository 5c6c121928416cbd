// Package csvseeds loads crawl seed identifiers from CSV files.
package csvseeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ukboards/ukboards/internal/companies"
)

// Default header names recognised in seed files.
const (
	DefaultCompanyColumn = "Company Number"
	DefaultCharityColumn = "Charity Number"
)

// Seed is one organisation row from a seed file.
type Seed struct {
	Row       int
	Name      string
	CompanyID companies.CompanyID
	CharityID string
}

// Options selects which columns hold the identifiers.
type Options struct {
	NameColumn    string
	CompanyColumn string
	CharityColumn string
}

func (o *Options) applyDefaults() {
	if o.CompanyColumn == "" {
		o.CompanyColumn = DefaultCompanyColumn
	}
	if o.CharityColumn == "" {
		o.CharityColumn = DefaultCharityColumn
	}
	if o.NameColumn == "" {
		o.NameColumn = "Organisation"
	}
}

// Read parses a seed CSV. Rows carrying neither a company nor a charity id
// are skipped with a warning. Company ids are normalized on the way in.
func Read(path string, opts Options) ([]Seed, error) {
	opts.applyDefaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read seed header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	nameCol, hasName := columns[opts.NameColumn]
	companyCol, hasCompany := columns[opts.CompanyColumn]
	charityCol, hasCharity := columns[opts.CharityColumn]
	if !hasCompany && !hasCharity {
		return nil, fmt.Errorf("seed file %s has neither a %q nor a %q column",
			path, opts.CompanyColumn, opts.CharityColumn)
	}

	var seeds []Seed
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read seed row %d: %w", row, err)
		}
		seed := Seed{Row: row}
		if hasName && nameCol < len(record) {
			seed.Name = strings.TrimSpace(record[nameCol])
		}
		if hasCompany && companyCol < len(record) {
			raw := strings.TrimSpace(record[companyCol])
			if raw != "" {
				seed.CompanyID = companies.NormalizeID(raw)
			}
		}
		if hasCharity && charityCol < len(record) {
			seed.CharityID = strings.TrimSpace(record[charityCol])
		}
		if seed.CompanyID == "" && seed.CharityID == "" {
			log.Warnf("Seed row %d of %s has no organisation ids, skipping", row, path)
			continue
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// CompanyIDs returns the distinct company ids of a seed list, in order.
func CompanyIDs(seeds []Seed) []companies.CompanyID {
	seen := make(map[companies.CompanyID]struct{}, len(seeds))
	var ids []companies.CompanyID
	for _, seed := range seeds {
		if seed.CompanyID == "" {
			continue
		}
		if _, ok := seen[seed.CompanyID]; ok {
			continue
		}
		seen[seed.CompanyID] = struct{}{}
		ids = append(ids, seed.CompanyID)
	}
	return ids
}

// CharityIDs returns the distinct charity ids of a seed list, in order.
func CharityIDs(seeds []Seed) []string {
	seen := make(map[string]struct{}, len(seeds))
	var ids []string
	for _, seed := range seeds {
		if seed.CharityID == "" {
			continue
		}
		if _, ok := seen[seed.CharityID]; ok {
			continue
		}
		seen[seed.CharityID] = struct{}{}
		ids = append(ids, seed.CharityID)
	}
	return ids
}
