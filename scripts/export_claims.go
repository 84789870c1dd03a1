package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"syntarex/internal/commission"
	"syntarex/internal/store"
	"syntarex/pkg/config"

	log "github.com/sirupsen/logrus"
)

type claim struct {
	UserID string                     `json:"userId"`
	Total  string                     `json:"total"`
	Proof  *commission.InclusionProof `json:"proof"`
}

type claimFile struct {
	WeekStart  string  `json:"weekStart"`
	Commitment string  `json:"commitment"`
	Total      string  `json:"total"`
	Claims     []claim `json:"claims"`
}

// Writes the claim file of a finalized week: every settlement together with
// its inclusion proof against the stored commitment.
func main() {
	weekStart := flag.String("week", "", "finalized week start, YYYY-MM-DD")
	outputDir := flag.String("output-dir", "output/claims", "directory for the claim file")
	flag.Parse()

	week, err := commission.ParseWeek(*weekStart)
	if err != nil {
		log.Fatal(err)
	}

	settings := config.LoadSettings()
	config.InitDB(settings)
	s := store.NewGormStore(config.DB)
	ctx := context.Background()

	run, err := s.GetRun(ctx, week)
	if err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}
	if run == nil || !run.IsFinalized {
		log.Fatalf("Week %s is not finalized", week.Key())
	}
	settlements, err := s.ListSettlements(ctx, week)
	if err != nil {
		log.Fatalf("Failed to load settlements: %v", err)
	}
	if commission.Commitment(week, settlements) != run.Commitment {
		log.Fatalf("Stored settlements of %s do not match commitment %s", week.Key(), run.Commitment)
	}

	out := claimFile{
		WeekStart:  week.Key(),
		Commitment: run.Commitment,
		Total:      commission.FormatMoney(run.Total),
		Claims:     make([]claim, 0, len(settlements)),
	}
	for _, st := range settlements {
		proof, err := commission.ProveInclusion(week, settlements, st.UserID)
		if err != nil {
			log.Fatalf("Failed to prove %s: %v", st.UserID, err)
		}
		out.Claims = append(out.Claims, claim{UserID: st.UserID, Total: commission.FormatMoney(st.Total), Proof: proof})
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	outputPath := filepath.Join(*outputDir, fmt.Sprintf("%s.json", week.Key()))
	jsonData, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode claims: %v", err)
	}
	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		log.Fatalf("Failed to write file: %v", err)
	}
	log.Infof("Exported %d claims to %s", len(out.Claims), outputPath)
}
