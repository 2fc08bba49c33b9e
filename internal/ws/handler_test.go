package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/waflawe/eXwonder-backend/internal/mocks"
	"github.com/waflawe/eXwonder-backend/internal/observability"
)

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no allow list admits all", allowed: nil, origin: "https://evil.example", want: true},
		{name: "listed origin", allowed: []string{"https://app.example"}, origin: "https://app.example", want: true},
		{name: "case insensitive", allowed: []string{"https://App.Example"}, origin: "https://app.example", want: true},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", want: false},
		{name: "non-browser client without origin", allowed: []string{"https://app.example"}, origin: "", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, originAllowed(tc.allowed, tc.origin))
		})
	}
}

func TestPublishConnEventUsesLiveContext(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	observability.SetPublisher(publisher)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	// The disconnect event outlives the handshake request; it must never ride
	// on an already-canceled context.
	publisher.On("PublishJSON",
		mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
		"ws_events.messenger",
		mock.MatchedBy(func(envelope observability.EventEnvelope) bool {
			return envelope.EventName == "ws_disconnect" && envelope.ConnID == "conn-1"
		}),
		mock.Anything,
	).Return(nil)

	info := ConnInfo{ConnID: "conn-1", RequestID: "req-1", ConnectedAt: time.Now()}
	publishConnEvent("ws_disconnect", info, 3*time.Second)

	publisher.AssertExpectations(t)
}
