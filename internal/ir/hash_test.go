package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterministic(t *testing.T) {
	ev := Event{Name: "logicblock_counter1_hit", Payload: Payload{"count": Int(1)}, Source: "counter1", Seq: 4, FlowToken: "flow-1"}

	id1, err := EventID(ev)
	require.NoError(t, err)
	id2, err := EventID(ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestEventIDDistinguishesFields(t *testing.T) {
	base := Event{Name: "a", Seq: 1, FlowToken: "f"}
	baseID := MustEventID(base)

	variants := map[string]Event{
		"name":    {Name: "b", Seq: 1, FlowToken: "f"},
		"seq":     {Name: "a", Seq: 2, FlowToken: "f"},
		"flow":    {Name: "a", Seq: 1, FlowToken: "g"},
		"source":  {Name: "a", Seq: 1, FlowToken: "f", Source: "counter1"},
		"payload": {Name: "a", Seq: 1, FlowToken: "f", Payload: Payload{"x": Int(1)}},
	}
	for name, ev := range variants {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, baseID, MustEventID(ev))
		})
	}
}

func TestEventIDNilPayloadMatchesEmpty(t *testing.T) {
	a := Event{Name: "a", Seq: 1, FlowToken: "f"}
	b := Event{Name: "a", Seq: 1, FlowToken: "f", Payload: Payload{}}
	assert.Equal(t, MustEventID(a), MustEventID(b))
}

func TestEventIDRejectsNull(t *testing.T) {
	_, err := EventID(Event{Name: "a", Payload: Payload{"x": Null{}}})
	assert.Error(t, err)
	assert.Panics(t, func() { MustEventID(Event{Name: "a", Payload: Payload{"x": Null{}}}) })
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainEvent, data), hashWithDomain(DomainConfig, data))
}

func TestConfigHashStableAndSensitive(t *testing.T) {
	defs := []BlockDef{
		{Name: "accrual1", Kind: KindAccrual, Params: AccrualParams{Steps: [][]string{{"a"}, {"b", "c"}}}},
		{Name: "counter1", Kind: KindCounter, Params: CounterParams{
			CountEvents: []string{"hit"}, Direction: DirectionUp,
			StartingCount: ExprInt(0), CompleteValue: ExprInt(3), CountInterval: 1,
			MultipleHitWindow: time.Second,
		}},
	}
	h1, err := ConfigHash(defs)
	require.NoError(t, err)
	h2, err := ConfigHash(defs)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := append([]BlockDef(nil), defs...)
	changed[1].Params = CounterParams{
		CountEvents: []string{"hit"}, Direction: DirectionUp,
		StartingCount: ExprInt(0), CompleteValue: ExprInt(4), CountInterval: 1,
		MultipleHitWindow: time.Second,
	}
	h3, err := ConfigHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
