package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/matheus3301/omnisync/internal/crm"
)

var (
	genContent   = rapid.SampledFrom([]string{"", "hi", "hello", "ok", "test"})
	genDirection = rapid.SampledFrom([]crm.Direction{crm.DirectionUnknown, crm.DirectionInbound, crm.DirectionOutbound})
	genState     = rapid.SampledFrom([]crm.DeliveryState{crm.DeliveryUnspecified, crm.DeliverySent, crm.DeliveryDelivered})
)

func genUpsert(t *rapid.T) crm.Event {
	return crm.Event{
		Kind:          crm.EventUpsert,
		MessageID:     fmt.Sprintf("srv%d", rapid.IntRange(0, 8).Draw(t, "id")),
		ContactID:     "x",
		Content:       genContent.Draw(t, "content"),
		OccurredAt:    at(int64(rapid.IntRange(0, 1000).Draw(t, "ts"))),
		Direction:     genDirection.Draw(t, "direction"),
		DeliveryState: genState.Draw(t, "state"),
	}
}

// genThread builds a thread the way a view would: a random interleaving of
// optimistic sends and live events.
func genThread(t *rapid.T) []crm.Message {
	var msgs []crm.Message
	steps := rapid.IntRange(0, 30).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		if rapid.Bool().Draw(t, "local") {
			msgs = AppendPending(msgs, crm.Message{
				ID:         fmt.Sprintf("temp-%d", i),
				Content:    genContent.Draw(t, "pending"),
				OccurredAt: at(int64(i)),
			})
			continue
		}
		msgs, _ = MessageEvent(msgs, genUpsert(t))
	}
	return msgs
}

func requireUniqueIDs(t require.TestingT, msgs []crm.Message) {
	seen := make(map[string]bool)
	for _, m := range msgs {
		require.False(t, seen[m.ID], "duplicate id %q in %v", m.ID, msgs)
		seen[m.ID] = true
	}
}

func TestPropertyNoDuplicateIDs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		requireUniqueIDs(t, genThread(t))
	})
}

func TestPropertyPatchIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgs := genThread(t)
		evt := genUpsert(t)

		once, _ := MessageEvent(msgs, evt)
		twice, _ := MessageEvent(once, evt)
		require.Equal(t, once, twice)
	})
}

func TestPropertyRemovalIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgs := genThread(t)
		rm := crm.Event{Kind: crm.EventRemoved, MessageID: fmt.Sprintf("srv%d", rapid.IntRange(0, 12).Draw(t, "id"))}

		once, _ := MessageEvent(msgs, rm)
		twice, outcome := MessageEvent(once, rm)
		require.Equal(t, once, twice)
		require.Equal(t, Ignored, outcome)
		require.LessOrEqual(t, len(msgs)-len(once), 1)
	})
}

func TestPropertyConfirmKeepsLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgs := genThread(t)
		evt := genUpsert(t)
		got, outcome := MessageEvent(msgs, evt)
		switch outcome {
		case Updated, Confirmed:
			require.Len(t, got, len(msgs))
		case Appended:
			require.Len(t, got, len(msgs)+1)
			require.Equal(t, evt.MessageID, got[len(got)-1].ID)
		default:
			t.Fatalf("unexpected outcome %s for an upsert", outcome)
		}
	})
}

func TestPropertyInboxNeverShrinks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "rows")
		list := make([]crm.Summary, n)
		for i := range list {
			list[i] = summary(fmt.Sprintf("c%d", i), int64(n-i))
		}
		for step := rapid.IntRange(1, 20).Draw(t, "events"); step > 0; step-- {
			evt := crm.Event{
				Kind:      crm.EventUpsert,
				ContactID: fmt.Sprintf("c%d", rapid.IntRange(0, 12).Draw(t, "target")),
				IsOpen:    rapid.Bool().Draw(t, "open"),
			}
			next, outcome := ConversationEvent(list, evt)
			require.Len(t, next, len(list))
			if outcome == Moved {
				require.Equal(t, evt.ContactID, next[0].ID)
			}
			list = next
		}
		require.Equal(t, list, DedupeSummaries(list))
	})
}
