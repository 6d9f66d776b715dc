package registration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelink/corelink-go/pkg/wire"
)

func TestServiceNames(t *testing.T) {
	n := DefaultServiceNames()
	assert.Equal(t, "svc.registry:1/info", n.InfoName())
	assert.Equal(t, "svc.registry:1/register", n.RegisterName())
	assert.Equal(t, "svc.transport:2/subscribe_zones", n.ZonesSubscriptionName())
	assert.Equal(t, "svc.transport:2/subscribe_queue", n.QueueSubscriptionName())
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name string
		body wire.Body
		want ServiceNames
	}{
		{
			name: "announced names",
			body: wire.MustJSONBody(map[string]any{
				"services": []string{"svc.transport:3", "svc.browse:2", "svc.image:4"},
			}),
			want: ServiceNames{Registry: ServiceRegistry, Transport: "svc.transport:3", Browse: "svc.browse:2", Image: "svc.image:4"},
		},
		{
			name: "first match wins",
			body: wire.MustJSONBody(map[string]any{
				"services":          []string{"svc.transport:2", "svc.transport:9"},
				"provided_services": []string{"svc.browse:7", "svc.browse:8"},
			}),
			want: ServiceNames{Registry: ServiceRegistry, Transport: "svc.transport:2", Browse: "svc.browse:7", Image: ServiceImage},
		},
		{
			name: "missing categories fall back",
			body: wire.MustJSONBody(map[string]any{"services": []string{"svc.unrelated:1"}}),
			want: DefaultServiceNames(),
		},
		{
			name: "empty body",
			body: wire.Body{},
			want: DefaultServiceNames(),
		},
		{
			name: "malformed body",
			body: wire.RawBody(wire.ContentTypeJSON, []byte("{not json")),
			want: DefaultServiceNames(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseInfo(tt.body, DefaultServiceNames())
			assert.Equal(t, tt.want, info.Services)
		})
	}
}

func TestParseInfoMetadata(t *testing.T) {
	body := wire.MustJSONBody(map[string]any{
		"core_id":         "core-42",
		"display_name":    "Study",
		"display_version": "2.0",
	})
	info := ParseInfo(body, DefaultServiceNames())
	assert.Equal(t, "core-42", info.CoreID)
	assert.Equal(t, "Study", info.DisplayName)
	assert.Equal(t, "2.0", info.DisplayVersion)
}

func TestParseInfoCBOR(t *testing.T) {
	body, err := wire.CBORBody(map[string]any{"services": []string{"svc.image:5"}})
	require.NoError(t, err)
	info := ParseInfo(body, DefaultServiceNames())
	assert.Equal(t, "svc.image:5", info.Services.Image)
}

func TestBuildRegisterBody(t *testing.T) {
	id := DefaultIdentity()
	id.ProvidedServices = []string{"svc.custom:1"}

	body, err := BuildRegisterBody(id, "abc")
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeJSON, body.ContentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, id.ExtensionID, got["extension_id"])
	assert.Equal(t, id.DisplayName, got["display_name"])
	assert.Equal(t, id.Publisher, got["publisher"])
	assert.Equal(t, "abc", got["token"])
	assert.Equal(t, []any{"svc.custom:1", ServicePing, ServiceStatus}, got["provided_services"])
	assert.Equal(t, []string{"svc.custom:1"}, id.ProvidedServices, "caller's identity is not modified")
}

func TestBuildRegisterBodyWithoutToken(t *testing.T) {
	body, err := BuildRegisterBody(Identity{ExtensionID: "x"}, "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &got))
	_, hasToken := got["token"]
	assert.False(t, hasToken)
	assert.Equal(t, []any{}, got["required_services"])
	assert.Equal(t, []any{ServicePing, ServiceStatus}, got["provided_services"])
}

func TestParseRegister(t *testing.T) {
	reg, ok := ParseRegister(wire.MustJSONBody(map[string]any{
		"token":        "abc",
		"core_id":      "core-1",
		"display_name": "CoreName",
	}))
	require.True(t, ok)
	assert.Equal(t, Registration{Token: "abc", CoreID: "core-1", DisplayName: "CoreName"}, reg)

	_, ok = ParseRegister(wire.MustJSONBody(map[string]any{"core_id": "core-1"}))
	assert.False(t, ok, "reply without token")

	_, ok = ParseRegister(wire.Body{})
	assert.False(t, ok, "empty reply")

	_, ok = ParseRegister(wire.RawBody(wire.ContentTypeJSON, []byte("[")))
	assert.False(t, ok, "malformed reply")

	assert.True(t, HasToken(wire.MustJSONBody(map[string]any{"token": "t"})))
}

func TestSubscriptionBodies(t *testing.T) {
	assert.JSONEq(t, `{"subscription_key":"zones"}`, string(ZonesSubscriptionBody().Data))

	assert.Equal(t, "queue:z1", QueueKey("z1"))
	assert.JSONEq(t,
		`{"zone_or_output_id":"z1","max_item_count":100,"subscription_key":"queue:z1"}`,
		string(QueueSubscriptionBody("z1", 0).Data))
	assert.JSONEq(t,
		`{"zone_or_output_id":"z1","max_item_count":5,"subscription_key":"queue:z1"}`,
		string(QueueSubscriptionBody("z1", 5).Data))
}

func TestReplyTo(t *testing.T) {
	t.Run("Ping", func(t *testing.T) {
		reply := ReplyTo(wire.NewRequest(7, "svc.ping:1/ping", wire.Body{}))
		require.NotNil(t, reply)
		assert.Equal(t, wire.VerbComplete, reply.Verb)
		assert.Equal(t, wire.StatusSuccess, reply.Name)
		assert.Equal(t, int64(7), reply.RequestID)
		assert.True(t, reply.Body.IsEmpty())
	})

	t.Run("Status", func(t *testing.T) {
		reply := ReplyTo(wire.NewRequest(9, "svc.status:1/subscribe_status", wire.Body{}))
		require.NotNil(t, reply)
		assert.Equal(t, int64(9), reply.RequestID)
		assert.JSONEq(t, `{"message":"Ready","is_error":false}`, string(reply.Body.Data))
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Nil(t, ReplyTo(wire.NewRequest(3, "svc.settings:1/get_settings", wire.Body{})))
	})
}
