package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petrijr/botflow/pkg/api"
)

// ErrInvalidBotID is returned when a bot id cannot be used as a storage key.
var ErrInvalidBotID = errors.New("invalid bot id")

// FlowStore persists one FlowGraph per bot id.
//
// LoadFlow and DeleteFlow return api.ErrFlowNotFound for unknown bots.
// SaveFlow validates the graph before writing it and overwrites any
// previous version.
type FlowStore interface {
	api.FlowLoader
	SaveFlow(ctx context.Context, botID string, g api.FlowGraph) error
	DeleteFlow(ctx context.Context, botID string) error
	// ListFlows returns the ids of all stored bots in ascending order.
	ListFlows(ctx context.Context) ([]string, error)
}

func checkBotID(botID string) error {
	if botID == "" || strings.ContainsAny(botID, "/\\:\x00") || botID == "." || botID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidBotID, botID)
	}
	return nil
}

// prepareSave checks the id and graph and returns the encoded payload.
func prepareSave(botID string, g api.FlowGraph) ([]byte, error) {
	if err := checkBotID(botID); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		var cfg *api.ConfigurationError
		if errors.As(err, &cfg) && cfg.BotID == "" {
			cfg.BotID = botID
		}
		return nil, err
	}
	return EncodeFlow(g)
}
