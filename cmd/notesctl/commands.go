package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voice-notes-go/internal/config"
	"voice-notes-go/internal/dataset"
	"voice-notes-go/internal/extractor"
	"voice-notes-go/internal/metadata"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Show the metadata ffprobe reports for a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(ctx.configPath)
			if err != nil {
				return err
			}
			meta, err := metadata.NewProber(cfg.Media.FFprobe).Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			recorded := ""
			if !meta.RecordedAt.IsZero() {
				recorded = meta.RecordedAt.Format(time.RFC3339)
			}
			rows := [][]string{
				{"Format", meta.Format},
				{"Codec", meta.Codec},
				{"Duration (s)", strconv.FormatFloat(meta.DurationSeconds, 'f', 2, 64)},
				{"Sample rate", strconv.Itoa(meta.SampleRate)},
				{"Channels", strconv.Itoa(meta.Channels)},
				{"Size (bytes)", strconv.FormatInt(meta.SizeBytes, 10)},
				{"Recorded", recorded},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{Title: "Field"}, {Title: "Value", Right: true}}, rows, ""))
			return nil
		},
	}
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "batch <sheet.xlsx>",
		Short: "Upload every recording listed in a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := dataset.LoadBatch(args[0])
			if err != nil {
				return err
			}
			base := filepath.Dir(args[0])
			client := newAPIClient(ctx.server)

			var (
				rows   [][]string
				failed int
			)
			for _, e := range entries {
				ownerID := e.OwnerID
				if ownerID == "" {
					ownerID = owner
				}
				path := e.FilePath
				if !filepath.IsAbs(path) {
					path = filepath.Join(base, path)
				}
				row := []string{strconv.Itoa(e.Row), ownerID, filepath.Base(path)}
				if ownerID == "" {
					failed++
					rows = append(rows, append(row, "", "no owner"))
					continue
				}
				res, err := client.upload(cmd.Context(), ownerID, path, e.Language)
				if err != nil {
					failed++
					rows = append(rows, append(row, "", err.Error()))
					continue
				}
				rows = append(rows, append(row, res.NoteID, res.Progress.StatusText))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{{Title: "Row", Right: true}, {Title: "Owner"}, {Title: "File"}, {Title: "Note"}, {Title: "Status", Wrap: 60}},
				rows,
				"uploads",
			))
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(entries))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner for rows without an owner column")
	return cmd
}

func newFlashcardsCommand(ctx *commandContext) *cobra.Command {
	var (
		count int
		quiz  bool
	)
	cmd := &cobra.Command{
		Use:   "flashcards <transcript-or-note>",
		Short: "Generate study flashcards or a quiz from a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(ctx.configPath)
			if err != nil {
				return err
			}
			llm := cfg.Settings().LLM
			if llm.BaseURL == "" || llm.Model == "" {
				return errors.New("llm.base_url and llm.model must be configured")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			client := extractor.NewClient()
			out := cmd.OutOrStdout()

			if quiz {
				questions, err := client.Quiz(cmd.Context(), string(data), llm, count)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(questions))
				for i, q := range questions {
					rows = append(rows, []string{strconv.Itoa(i + 1), q.Question, strings.Join(q.Options, " | "), q.Options[q.AnswerIndex]})
				}
				fmt.Fprintln(out, renderTable([]column{{Title: "#", Right: true}, {Title: "Question", Wrap: 50}, {Title: "Options", Wrap: 50}, {Title: "Answer", Wrap: 30}}, rows, "questions"))
				return nil
			}

			cards, err := client.Flashcards(cmd.Context(), string(data), llm, count)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cards))
			for i, c := range cards {
				rows = append(rows, []string{strconv.Itoa(i + 1), c.Front, c.Back})
			}
			fmt.Fprintln(out, renderTable([]column{{Title: "#", Right: true}, {Title: "Front", Wrap: 50}, {Title: "Back", Wrap: 60}}, rows, "cards"))
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of items to request (0 uses the default)")
	cmd.Flags().BoolVar(&quiz, "quiz", false, "Generate multiple-choice questions instead of flashcards")
	return cmd
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "progress <owner> <note-id>",
		Short: "Show the pipeline progress of a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(ctx.server)
			out := cmd.OutOrStdout()
			for {
				p, err := client.progress(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, p.StatusText)
				if !watch || !p.Found || p.Status.Terminal() {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --watch")
	return cmd
}
