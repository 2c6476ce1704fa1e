package ethereum

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// LogSource installs node-side log filters for pair Swap events.
type LogSource interface {
	NewSwapFilter(ctx context.Context, pair common.Address) (LogFilter, error)
}

// LogFilter drains new log entries since the previous poll. Node-side
// filters expire when idle; GetNewEntries surfaces that as an error for
// which IsFilterNotFound returns true, and the caller reinstalls.
type LogFilter interface {
	GetNewEntries(ctx context.Context) ([]types.Log, error)
	Uninstall(ctx context.Context) error
}

// IsFilterNotFound reports whether err means the node dropped the filter.
func IsFilterNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "filter not found")
}

// RPCLogSource implements LogSource over a raw JSON-RPC connection using
// eth_newFilter and eth_getFilterChanges.
type RPCLogSource struct {
	client *rpc.Client
}

// NewRPCLogSource wraps an RPC connection as a log source.
func NewRPCLogSource(client *rpc.Client) *RPCLogSource {
	return &RPCLogSource{client: client}
}

type filterQuery struct {
	FromBlock string           `json:"fromBlock"`
	Address   []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
}

// NewSwapFilter installs a filter matching Swap events on the given pair.
// Filters start at the latest block: swaps that happened before monitoring
// began are invisible.
func (s *RPCLogSource) NewSwapFilter(ctx context.Context, pair common.Address) (LogFilter, error) {
	query := filterQuery{
		FromBlock: "latest",
		Address:   []common.Address{pair},
		Topics:    [][]common.Hash{{SwapEventTopic}},
	}

	var id string
	if err := s.client.CallContext(ctx, &id, "eth_newFilter", query); err != nil {
		return nil, fmt.Errorf("installing swap filter for %s: %w", pair.Hex(), err)
	}
	return &rpcLogFilter{client: s.client, id: id}, nil
}

type rpcLogFilter struct {
	client *rpc.Client
	id     string
}

func (f *rpcLogFilter) GetNewEntries(ctx context.Context) ([]types.Log, error) {
	var logs []types.Log
	if err := f.client.CallContext(ctx, &logs, "eth_getFilterChanges", f.id); err != nil {
		return nil, err
	}
	return logs, nil
}

func (f *rpcLogFilter) Uninstall(ctx context.Context) error {
	var ok bool
	return f.client.CallContext(ctx, &ok, "eth_uninstallFilter", f.id)
}
