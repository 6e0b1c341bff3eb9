package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows future algorithm migration.
const (
	DomainEvent  = "mpf/event/v1"
	DomainConfig = "mpf/config/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of a journaled event.
// Two replays of the same input produce the same ids.
func EventID(ev Event) (string, error) {
	payload := ev.Payload
	if payload == nil {
		payload = Payload{}
	}
	obj := Payload{
		"flow_token": Str(ev.FlowToken),
		"name":       Str(ev.Name),
		"payload":    payload,
		"seq":        Int(ev.Seq),
		"source":     Str(ev.Source),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when the payload is known to be valid.
func MustEventID(ev Event) string {
	id, err := EventID(ev)
	if err != nil {
		panic(err)
	}
	return id
}

// ConfigHash fingerprints a set of block definitions so journals can tell
// which configuration produced them.
func ConfigHash(defs []BlockDef) (string, error) {
	list := make(List, 0, len(defs))
	for _, d := range defs {
		steps := make(List, 0, len(d.Steps()))
		for _, group := range d.Steps() {
			members := make(List, len(group))
			for i, e := range group {
				members[i] = Str(e)
			}
			steps = append(steps, members)
		}
		entry := Payload{
			"name":     Str(d.Name),
			"kind":     Str(d.Kind),
			"steps":    steps,
			"progress": strList(d.ProgressEvents()),
			"emits":    strList(d.EmittedEvents()),
			"controls": strList(concat(d.EnableEvents, d.DisableEvents, d.ResetEvents, d.RestartEvents)),
		}
		if p, ok := d.Params.(CounterParams); ok {
			entry["counter"] = Payload{
				"direction": Str(p.Direction),
				"start":     Str(p.StartingCount),
				"target":    Str(p.CompleteValue),
				"interval":  Int(p.CountInterval),
				"window_ms": Int(p.MultipleHitWindow.Milliseconds()),
			}
		}
		list = append(list, entry)
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("ConfigHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainConfig, canonical), nil
}

func strList(in []string) List {
	out := make(List, len(in))
	for i, s := range in {
		out[i] = Str(s)
	}
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
