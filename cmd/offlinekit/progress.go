// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/content"
	"github.com/ManuGH/offlinekit/internal/progress"
	"github.com/ManuGH/offlinekit/internal/progress/records"
)

var contentFlag = &cli.StringFlag{
	Name:  "content",
	Usage: "question bank file; defaults to the bank in the installed generation",
}

var jsonFlag = &cli.BoolFlag{
	Name:  "json",
	Usage: "print JSON instead of text",
}

func progressCommand() *cli.Command {
	flags := []cli.Flag{contentFlag, jsonFlag}
	return &cli.Command{
		Name:  "progress",
		Usage: "inspect and change learner progress",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the current question and counters",
				Flags: flags,
				Action: progressAction(func(ctx context.Context, cmd *cli.Command, s *progress.Session) (progress.State, *bool, error) {
					return s.State(), nil, nil
				}),
			},
			{
				Name:      "answer",
				Usage:     "answer the current question",
				UsageText: "offlinekit progress answer CHOICE",
				Flags:     flags,
				Action: progressAction(func(ctx context.Context, cmd *cli.Command, s *progress.Session) (progress.State, *bool, error) {
					choice, err := strconv.Atoi(cmd.Args().First())
					if err != nil {
						return progress.State{}, nil, fmt.Errorf("choice must be an integer: %q", cmd.Args().First())
					}
					st, accepted, err := s.Answer(ctx, choice)
					return st, &accepted, err
				}),
			},
			advanceCommand("next", "move forward", 1, flags),
			advanceCommand("prev", "move back", -1, flags),
			{
				Name:  "shuffle",
				Usage: "shuffle the order and start over, keeping answers",
				Flags: flags,
				Action: progressAction(func(ctx context.Context, _ *cli.Command, s *progress.Session) (progress.State, *bool, error) {
					st, err := s.Shuffle(ctx)
					return st, nil, err
				}),
			},
			{
				Name:  "reset",
				Usage: "clear all answers and restore the original order",
				Flags: flags,
				Action: progressAction(func(ctx context.Context, _ *cli.Command, s *progress.Session) (progress.State, *bool, error) {
					st, err := s.Reset(ctx)
					return st, nil, err
				}),
			},
		},
	}
}

func advanceCommand(name, usage string, sign int, flags []cli.Flag) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "n", Usage: "number of questions", Value: 1},
		}, flags...),
		Action: progressAction(func(ctx context.Context, cmd *cli.Command, s *progress.Session) (progress.State, *bool, error) {
			n := cmd.Int("n")
			if n < 1 {
				return progress.State{}, nil, errors.New("n must be positive")
			}
			st, err := s.Advance(ctx, sign*n)
			return st, nil, err
		}),
	}
}

type transition func(ctx context.Context, cmd *cli.Command, s *progress.Session) (progress.State, *bool, error)

// progressAction opens the session, runs fn and prints the result.
func progressAction(fn transition) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		bank, err := loadBank(ctx, cfg, cmd.String("content"))
		if err != nil {
			return err
		}
		backend, err := records.Open(records.Options{Backend: cfg.Progress.Backend, Dir: cfg.DataDir})
		if err != nil {
			return err
		}
		defer backend.Close()

		sess, err := progress.Open(ctx, progress.Options{
			Backend:    backend,
			Collection: cfg.Progress.Collection,
			Items:      bank,
		})
		if err != nil {
			return err
		}
		st, accepted, err := fn(ctx, cmd, sess)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return printJSON(out(cmd), sess.Collection(), st, accepted)
		}
		return printText(out(cmd), bank, st, accepted)
	}
}

// loadBank reads the bank from a file, or from the installed generation so
// it works offline.
func loadBank(ctx context.Context, cfg config.Config, file string) (content.Bank, error) {
	if file != "" {
		return content.LoadFile(file)
	}
	var bank content.Bank
	err := withManager(ctx, cfg, false, func(m *cachemgr.Manager) error {
		restored, err := m.Restore(ctx)
		if err != nil {
			return err
		}
		if !restored {
			return errors.New("no installed generation; run install or pass --content")
		}
		bank, err = content.Fetch(ctx, m, cfg.Progress.ContentPath)
		return err
	})
	return bank, err
}

type progressOutput struct {
	Collection string         `json:"collection"`
	State      progress.State `json:"state"`
	View       progress.View  `json:"view"`
	Accepted   *bool          `json:"accepted,omitempty"`
}

func printJSON(w io.Writer, collection string, st progress.State, accepted *bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(progressOutput{
		Collection: collection,
		State:      st,
		View:       progress.ViewOf(st),
		Accepted:   accepted,
	})
}

func printText(w io.Writer, bank content.Bank, st progress.State, accepted *bool) error {
	v := progress.ViewOf(st)
	if accepted != nil && !*accepted {
		fmt.Fprintln(w, "answer ignored")
	}
	if v.Item < 0 {
		_, err := fmt.Fprintln(w, "no questions")
		return err
	}
	q := bank[v.Item]
	fmt.Fprintf(w, "%s  %s\n\n%s\n", v.Label(), v.Summary(), q.Stem)
	for i, choice := range q.Choices {
		marker := " "
		if v.Answer != nil && *v.Answer == i {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %d) %s\n", marker, i, choice)
	}
	if v.Answer != nil {
		verdict := "incorrect"
		if *v.Answer == q.AnswerIndex {
			verdict = "correct"
		}
		fmt.Fprintf(w, "\n%s. %s\n", verdict, q.Explanation)
	}
	_, err := fmt.Fprintf(w, "\n%.0f%% complete\n", v.Percent)
	return err
}
