// Package status implements the read-only "Game Status" module: it
// reports empire-wide gold, resources, and ship counts, grounded on
// original_source/autoIkabot/modules/getStatus.py. It exists to exercise
// the Dispatch -> EnterBackgroundMode -> heartbeat -> restart loop without
// taking on the full city/building parser getStatus.py's per-city detail
// view depends on (spec.md Non-goals exclude general game HTML parsers).
package status

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/gamestate"
	"github.com/outpostctl/outpost/internal/modregistry"
)

const (
	ModuleID          = 19
	ModuleName        = "status"
	ModuleSection     = "Spy/Monitoring"
	ModuleDescription = "View empire status (gold, resources, ships)"
)

// New returns the registry Module, logging its summary to log rather than
// printing to stdout directly — a detached worker has no terminal (spec.md
// §4.9).
func New(log *logrus.Entry) modregistry.Module {
	return modregistry.Module{
		ID:          ModuleID,
		Section:     ModuleSection,
		Name:        ModuleName,
		Description: ModuleDescription,
		Run: func(ctx context.Context, session *gamesession.Session, inputs []string) error {
			return run(ctx, session, log)
		},
	}
}

func run(ctx context.Context, session *gamesession.Session, log *logrus.Entry) error {
	body, _, err := session.Get(ctx, "view=updateGlobalData", nil, gamesession.RequestOptions{})
	if err != nil {
		return fmt.Errorf("status: fetch updateGlobalData: %w", err)
	}

	g, err := gamestate.ParseGlobalData(body)
	if err != nil {
		return fmt.Errorf("status: parse updateGlobalData: %w", err)
	}

	log.WithFields(logrus.Fields{
		"gold":              g.Gold,
		"wood":              g.Resources[0],
		"wine":              g.Resources[1],
		"marble":            g.Resources[2],
		"crystal":           g.Resources[3],
		"sulfur":            g.Resources[4],
		"free_transporters": g.FreeTransporters,
		"max_transporters":  g.MaxTransporters,
		"free_freighters":   g.FreeFreighters,
		"max_freighters":    g.MaxFreighters,
		"citizens":          g.Citizens,
		"population":        g.Population,
	}).Info("empire status")

	return nil
}
