package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukboards/ukboards/internal/companies"
	"github.com/ukboards/ukboards/internal/config"
	"github.com/ukboards/ukboards/internal/graph"
	"github.com/ukboards/ukboards/internal/transport"
)

var (
	flagOfficers        bool
	flagControllers     bool
	flagEdgeData        bool
	flagEnforceTies     bool
	flagExcludeInactive bool
	flagExcludeResigned bool
	flagExcludeCeased   bool
	flagAsync           bool
)

var companyCmd = &cobra.Command{
	Use:   "company COMPANY_NUMBER...",
	Short: "Crawl the board network of one or more companies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]companies.CompanyID, 0, len(args))
		for _, arg := range args {
			ids = append(ids, companies.NormalizeID(arg))
		}

		client, err := newCompaniesClient(len(ids) > 1)
		if err != nil {
			return err
		}

		g, err := crawlCompanies(client, ids)
		if err != nil {
			return err
		}
		return writeOutputs(g, client.Runs().Last(), "completed")
	},
}

func init() {
	companyCmd.Flags().BoolVar(&flagOfficers, "officers", true, "include company officers")
	companyCmd.Flags().BoolVar(&flagControllers, "controllers", false, "include persons with significant control")
	companyCmd.Flags().BoolVar(&flagEdgeData, "edge-data", false, "attach raw board records to edges")
	companyCmd.Flags().BoolVar(&flagEnforceTies, "enforce-missing-ties", false, "add ties missing from destination listings")
	companyCmd.Flags().BoolVar(&flagExcludeInactive, "exclude-non-active", false, "skip companies that are not active")
	companyCmd.Flags().BoolVar(&flagExcludeResigned, "exclude-resigned", false, "skip resigned board members")
	companyCmd.Flags().BoolVar(&flagExcludeCeased, "exclude-ceased", false, "skip ceased controllers")
	companyCmd.Flags().BoolVar(&flagAsync, "async", false, "crawl multiple roots concurrently")
	rootCmd.AddCommand(companyCmd)
}

// newCompaniesClient wires the rate-limited fetcher, the registry query
// client and the crawl client together from config and flags. Composed
// multi-seed crawls accumulate one graph instead of resetting per seed.
func newCompaniesClient(compose bool) (*companies.Client, error) {
	fetcher, err := newFetcher()
	if err != nil {
		return nil, err
	}
	api := transport.NewClient(fetcher, transport.ClientConfig{
		BaseURL:     cfg.CompaniesHouseURL,
		AuthKey:     cfg.CompaniesHouseKey,
		KeyEnvName:  config.CompaniesHouseKeyEnv,
		KeyFilePath: config.DefaultKeyFilePath,
		MaxTrials:   cfg.MaxTrials,
		Sleep:       time.Duration(cfg.RetrySleepSec) * time.Second,
	})
	api.Metrics = tracker.RecordQuery
	api.Timing = tracker.RecordQueryTime

	clientCfg := companies.DefaultClientConfig()
	clientCfg.Branches = flagBranches
	clientCfg.IncludeOfficers = flagOfficers
	clientCfg.IncludeSignificantControllers = flagControllers
	clientCfg.IncludeEdgeData = flagEdgeData
	clientCfg.EnforceMissingTies = flagEnforceTies
	clientCfg.ExcludeNonActiveCompanies = flagExcludeInactive
	clientCfg.ExcludeResignedBoardMembers = flagExcludeResigned
	clientCfg.ExcludeCeasedControllers = flagExcludeCeased
	if compose {
		clientCfg.ComposeQueriedNetworks = true
		clientCfg.ResetCache = false
	}

	client, err := companies.NewClient(clientCfg, api)
	if err != nil {
		return nil, err
	}
	client.Metrics = tracker.RecordGraphSize
	return client, nil
}

func crawlCompanies(client *companies.Client, ids []companies.CompanyID) (*graph.Graph, error) {
	if len(ids) == 1 {
		logrus.Infof("Crawling company network from %s (branches=%d)", ids[0], flagBranches)
		g, err := client.GetNetwork(ids[0])
		if err != nil {
			return nil, fmt.Errorf("company crawl failed: %w", err)
		}
		return g, nil
	}

	logrus.Infof("Crawling composed network of %d companies (branches=%d, async=%t)",
		len(ids), flagBranches, flagAsync)
	var (
		g   *graph.Graph
		err error
	)
	if flagAsync {
		g, err = client.AsyncGetComposedNetwork(ids)
	} else {
		g, err = client.GetComposedNetwork(ids)
	}
	if err != nil {
		return nil, fmt.Errorf("composed company crawl failed: %w", err)
	}
	return g, nil
}
