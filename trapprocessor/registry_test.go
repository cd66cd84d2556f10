package trapprocessor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

func v1Message(generic snmppdu.GenericTrap, specific int) *snmppdu.TrapMessage {
	return &snmppdu.TrapMessage{
		Version:      snmppdu.V1,
		Community:    "public",
		PDUType:      snmppdu.PDUTrapV1,
		Enterprise:   snmppdu.MustParseOID("1.3.6.1.4.1.9"),
		GenericTrap:  generic,
		SpecificTrap: specific,
	}
}

func v2cMessage(trapOID string) *snmppdu.TrapMessage {
	msg := &snmppdu.TrapMessage{
		Version:   snmppdu.V2c,
		Community: "public",
		PDUType:   snmppdu.PDUTrapV2,
	}
	if trapOID != "" {
		msg.VarBinds = []snmppdu.VarBind{{
			OID:   snmppdu.OIDSnmpTrapOID,
			Value: snmppdu.Value{Type: snmppdu.TypeObjectIdentifier, OID: snmppdu.MustParseOID(trapOID)},
		}}
	}
	return msg
}

// counter returns a handler and a function reporting how often it ran.
func counter() (Handler, func() int) {
	var mu sync.Mutex
	n := 0
	return func(context.Context, *snmppdu.TrapMessage) {
			mu.Lock()
			n++
			mu.Unlock()
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return n
		}
}

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("specific_beats_default", func(t *testing.T) {
		reg := NewRegistry()
		linkDown, linkDownCalls := counter()
		fallback, fallbackCalls := counter()
		require.NoError(t, reg.Register(oidLinkDown, linkDown))
		require.NoError(t, reg.RegisterDefault(fallback))

		result, err := reg.Dispatch(ctx, v1Message(snmppdu.LinkDown, 0))
		require.NoError(t, err)
		assert.Equal(t, Matched, result)

		result, err = reg.Dispatch(ctx, v2cMessage(oidLinkDown))
		require.NoError(t, err)
		assert.Equal(t, Matched, result)

		assert.Equal(t, 2, linkDownCalls())
		assert.Zero(t, fallbackCalls())
	})

	t.Run("falls_back_to_default", func(t *testing.T) {
		reg := NewRegistry()
		linkDown, linkDownCalls := counter()
		fallback, fallbackCalls := counter()
		require.NoError(t, reg.Register(oidLinkDown, linkDown))
		require.NoError(t, reg.Register(DefaultKind, fallback))

		result, err := reg.Dispatch(ctx, v1Message(snmppdu.ColdStart, 0))
		require.NoError(t, err)
		assert.Equal(t, Default, result)

		// A v2c trap without snmpTrapOID.0 has no kind and only reaches the
		// default handler.
		result, err = reg.Dispatch(ctx, v2cMessage(""))
		require.NoError(t, err)
		assert.Equal(t, Default, result)

		assert.Zero(t, linkDownCalls())
		assert.Equal(t, 2, fallbackCalls())
	})

	t.Run("dropped_without_handlers", func(t *testing.T) {
		reg := NewRegistry()
		h, calls := counter()
		require.NoError(t, reg.Register(oidLinkUp, h))

		result, err := reg.Dispatch(ctx, v1Message(snmppdu.ColdStart, 0))
		assert.NoError(t, err)
		assert.Equal(t, Dropped, result)
		assert.Zero(t, calls())
	})

	t.Run("enterprise_specific_kind", func(t *testing.T) {
		reg := NewRegistry()
		h, calls := counter()
		require.NoError(t, reg.RegisterOID(snmppdu.MustParseOID("1.3.6.1.4.1.9.0.42"), h))

		result, err := reg.Dispatch(ctx, v1Message(snmppdu.EnterpriseSpecific, 42))
		require.NoError(t, err)
		assert.Equal(t, Matched, result)
		assert.Equal(t, 1, calls())
	})

	t.Run("last_registration_wins", func(t *testing.T) {
		reg := NewRegistry()
		first, firstCalls := counter()
		second, secondCalls := counter()
		require.NoError(t, reg.Register(oidLinkDown, first))
		require.NoError(t, reg.Register("."+oidLinkDown, second))

		_, err := reg.Dispatch(ctx, v1Message(snmppdu.LinkDown, 0))
		require.NoError(t, err)
		assert.Zero(t, firstCalls())
		assert.Equal(t, 1, secondCalls())
		assert.Equal(t, []string{oidLinkDown}, reg.Kinds())
	})

	t.Run("panic_is_recovered", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.RegisterDefault(func(context.Context, *snmppdu.TrapMessage) {
			panic("handler bug")
		}))

		result, err := reg.Dispatch(ctx, v1Message(snmppdu.ColdStart, 0))
		assert.ErrorIs(t, err, ErrHandlerPanic)
		assert.ErrorContains(t, err, "handler bug")
		assert.Equal(t, Default, result)
	})

	t.Run("handler_receives_context", func(t *testing.T) {
		type key struct{}
		reg := NewRegistry()
		var got any
		require.NoError(t, reg.RegisterDefault(func(ctx context.Context, _ *snmppdu.TrapMessage) {
			got = ctx.Value(key{})
		}))

		_, err := reg.Dispatch(context.WithValue(ctx, key{}, "v"), v1Message(snmppdu.ColdStart, 0))
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})
}

func TestRegistryRegisterErrors(t *testing.T) {
	h := func(context.Context, *snmppdu.TrapMessage) {}

	tests := []struct {
		name string
		fn   func(*Registry) error
	}{
		{"nil_handler", func(r *Registry) error { return r.Register(oidLinkDown, nil) }},
		{"nil_default", func(r *Registry) error { return r.RegisterDefault(nil) }},
		{"empty_kind", func(r *Registry) error { return r.Register("", h) }},
		{"not_an_oid", func(r *Registry) error { return r.Register("linkDown", h) }},
		{"empty_oid", func(r *Registry) error { return r.RegisterOID(nil, h) }},
		{"nil_oid_handler", func(r *Registry) error { return r.RegisterOID(snmppdu.OIDSnmpTraps, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(NewRegistry()), ErrInvalidHandler)
		})
	}
}

func TestRegistryFreeze(t *testing.T) {
	h := func(context.Context, *snmppdu.TrapMessage) {}
	reg := NewRegistry()
	require.NoError(t, reg.Register(oidLinkUp, h))
	assert.False(t, reg.Frozen())

	reg.freeze()
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register(oidLinkDown, h), ErrRegistryFrozen)
	assert.ErrorIs(t, reg.RegisterDefault(h), ErrRegistryFrozen)
	assert.ErrorIs(t, reg.RegisterOID(snmppdu.OIDSnmpTraps, h), ErrRegistryFrozen)
	assert.False(t, reg.HasDefault())
	assert.Equal(t, []string{oidLinkUp}, reg.Kinds())

	result, err := reg.Dispatch(context.Background(), v1Message(snmppdu.LinkUp, 0))
	require.NoError(t, err)
	assert.Equal(t, Matched, result)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "default", Default.String())
	assert.Equal(t, "dropped", Dropped.String())
}
