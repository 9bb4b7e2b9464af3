// ABOUTME: Transport adapter contract: what every wire adapter needs from the core.
// ABOUTME: Adapters authenticate source_id; core failures never propagate transport errors.

package transport

import (
	"context"
	"time"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/gateway"
	"github.com/openagents/openagents/internal/subscription"
)

// Core is the gateway surface a transport adapter drives. Adapters submit
// outbound agent events via ProcessEvent and drain inbound queues via Poll;
// they are responsible for authenticating source_id before injection.
type Core interface {
	ProcessEvent(ctx context.Context, ev *event.Event) (*event.Response, error)
	ResponseFor(ctx context.Context, eventID string, timeout time.Duration) (*event.Response, error)
	RegisterAgent(ctx context.Context, agentID string, metadata map[string]any, credential string, forceReconnect bool) (*gateway.RegistrationResult, error)
	UnregisterAgent(ctx context.Context, agentID string) bool
	Subscribe(sub *subscription.Subscription) (string, error)
	Unsubscribe(subscriptionID string) bool
	Poll(ctx context.Context, agentID string, max int, timeout time.Duration) ([]*event.Event, error)
	Channels() []gateway.ChannelInfo
	Agents() []agent.Info
}
