package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/abstructionai/crowdwise/internal/audit"
	"github.com/abstructionai/crowdwise/internal/cluster"
	"github.com/abstructionai/crowdwise/internal/feedback"
	"github.com/abstructionai/crowdwise/internal/metrics"
	"github.com/abstructionai/crowdwise/internal/models"
	"github.com/abstructionai/crowdwise/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	processSession string
	processUser    string
	processRespond bool
)

var processCmd = &cobra.Command{
	Use:   "process <utterance>",
	Short: "Run one utterance through the feedback loop",
	Long: `Process a single student utterance. Questions are assigned to a
cluster and come back with that cluster's prompt enhancement; feedback
is classified and, when positive, attributed to the answer that earned it.

Examples:
  crowdwise process "how does photosynthesis work"
  crowdwise process "thanks, that was perfect" --session abc123
  crowdwise process "explain recursion" --respond`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processSession, "session", "", "session id (generated when empty)")
	processCmd.Flags().StringVar(&processUser, "user", "", "user id for cross-session attribution")
	processCmd.Flags().BoolVar(&processRespond, "respond", false, "also generate the tutoring response")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	text := strings.Join(args, " ")

	sessionID := processSession
	if sessionID == "" {
		sessionID = uuid.New().String()[:8]
	}
	var userID *string
	if processUser != "" {
		userID = &processUser
	}

	emb, gen, err := getLLM()
	if err != nil {
		return err
	}

	sink := audit.NewSink(dbClient, cfg.AuditQueueSize)
	defer sink.Close()

	clusterer := cluster.New(dbClient, emb, cluster.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		Alpha:               cfg.CentroidAlpha,
		MaxClusters:         cfg.MaxClusters,
	}, logger)
	classifier := feedback.NewClassifier(gen, feedback.ClassifierConfig{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MinLength:           cfg.MinFeedbackLength,
	}, logger)
	attributor := feedback.NewAttributor(dbClient, feedback.AttributorConfig{
		Window:        cfg.AttributionWindow,
		MaxCandidates: cfg.MaxCandidates,
		MinScore:      cfg.MinAttribution,
	}, logger)

	collector := metrics.NewCollector()
	svc := service.NewLearningService(clusterer, classifier, attributor, sink, collector, logger)

	outcome, err := svc.HandleUtterance(ctx, text, sessionID, userID)
	if err != nil {
		return fmt.Errorf("process utterance: %w", err)
	}

	switch outcome.Kind {
	case models.UtteranceQuery:
		printQueryOutcome(outcome)
		if processRespond {
			enhancement := ""
			if outcome.Assignment != nil {
				enhancement = outcome.Assignment.Enhancement
			}
			response, err := gen.GenerateTutoringResponse(ctx, text, enhancement)
			if err != nil {
				return fmt.Errorf("generate response: %w", err)
			}
			fmt.Println()
			fmt.Println(header("Response"))
			fmt.Println(response)
		}
	case models.UtteranceFeedback:
		printFeedbackOutcome(outcome)
	}

	if verbose {
		printTimings(collector.Snapshot())
	}

	return nil
}

func printTimings(snap metrics.Snapshot) {
	if len(snap.Operations) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(hint("Timings"))
	for op, s := range snap.Operations {
		fmt.Printf("  %-10s %4dms (x%d)\n", op, s.TotalTimeMs, s.Count)
	}
}

func printQueryOutcome(outcome *models.UtteranceOutcome) {
	a := outcome.Assignment
	if a == nil {
		fmt.Println(errText("Clustering unavailable; proceeding without enhancement"))
		return
	}

	if a.IsNewCluster {
		fmt.Printf("%s %s (%s)\n", success("New cluster:"), a.ClusterName, a.ClusterID)
	} else {
		fmt.Printf("%s %s (%s), similarity %.3f\n", header("Cluster:"), a.ClusterName, a.ClusterID, a.Similarity)
	}

	if a.Enhancement != "" {
		fmt.Printf("%s %s\n", header("Enhancement:"), a.Enhancement)
	} else {
		fmt.Println(hint("No enhancement learned for this cluster yet"))
	}
}

func printFeedbackOutcome(outcome *models.UtteranceOutcome) {
	v := outcome.Verdict
	sentiment := "negative"
	if v.IsPositive {
		sentiment = "positive"
	}
	fmt.Printf("%s %s (confidence %.2f, pattern %.2f, judge %.2f)\n",
		header("Feedback:"), sentiment, v.Confidence, v.PatternScore, v.JudgeScore)

	if outcome.Attribution != nil {
		att := outcome.Attribution
		scope := "same session"
		if !att.SameSession {
			scope = "cross-session"
		}
		fmt.Printf("%s %q in cluster %s (score %.2f, %s)\n",
			success("Attributed to:"), att.QueryText, att.ClusterID, att.Score, scope)
	} else if v.IsPositive {
		fmt.Println(hint("No recent answer qualified for attribution"))
	}
}
