package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukboards/ukboards/internal/charities"
	"github.com/ukboards/ukboards/internal/csvseeds"
	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/runs"
)

var (
	flagNameColumn    string
	flagCompanyColumn string
	flagCharityColumn string
)

var csvCmd = &cobra.Command{
	Use:   "csv SEED_FILE",
	Short: "Crawl every organisation listed in a seed CSV",
	Long:  "Reads company and charity numbers from a CSV file, crawls each\nregistry and writes the union of both networks.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, err := csvseeds.Read(args[0], csvseeds.Options{
			NameColumn:    flagNameColumn,
			CompanyColumn: flagCompanyColumn,
			CharityColumn: flagCharityColumn,
		})
		if err != nil {
			return err
		}
		companyIDs := csvseeds.CompanyIDs(seeds)
		charityNumbers := csvseeds.CharityIDs(seeds)
		logrus.Infof("Loaded %d seeds from %s: %d companies, %d charities",
			len(seeds), args[0], len(companyIDs), len(charityNumbers))

		combined := graph.New()
		var record *runs.Record

		if len(companyIDs) > 0 {
			client, err := newCompaniesClient(len(companyIDs) > 1)
			if err != nil {
				return err
			}
			g, err := crawlCompanies(client, companyIDs)
			if err != nil {
				return err
			}
			if err := combined.Compose(g); err != nil {
				return err
			}
			record = client.Runs().Last()
		}

		if len(charityNumbers) > 0 {
			ids := make([]charities.CharityID, 0, len(charityNumbers))
			for _, raw := range charityNumbers {
				number, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("invalid charity number %q: %w", raw, err)
				}
				ids = append(ids, charities.CharityID(number))
			}
			client, err := newCharitiesClient(len(ids) > 1)
			if err != nil {
				return err
			}
			g, err := crawlCharities(client, ids)
			if err != nil {
				return err
			}
			if err := combined.Compose(g); err != nil {
				return err
			}
			if record == nil {
				record = client.Runs().Last()
			}
		}

		if !combined.IsBipartite() {
			return fmt.Errorf("combined network is not bipartite")
		}
		return writeOutputs(combined, record, "completed")
	},
}

func init() {
	csvCmd.Flags().StringVar(&flagNameColumn, "name-column", "", "CSV column holding organisation names")
	csvCmd.Flags().StringVar(&flagCompanyColumn, "company-column", "", "CSV column holding company numbers")
	csvCmd.Flags().StringVar(&flagCharityColumn, "charity-column", "", "CSV column holding charity numbers")
	rootCmd.AddCommand(csvCmd)
}
