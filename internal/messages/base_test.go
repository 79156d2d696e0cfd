package messages

import (
	"reflect"
	"testing"

	"github.com/aiperf/aiperf/internal/models"
)

// TestRoundTrip checks Message round-tripping across every message family.
func TestRoundTrip(t *testing.T) {
	cases := []Message{
		&RegistrationMessage{
			Envelope:    Envelope{MessageType: TypeRegistration, RequestID: "r1"},
			ServiceID:   "worker-1",
			ServiceType: "worker",
		},
		&HeartbeatMessage{
			Envelope:  Envelope{MessageType: TypeHeartbeat},
			ServiceID: "worker-1",
			State:     "RUNNING",
		},
		&CommandMessage{
			Envelope: Envelope{MessageType: TypeCommand, Command: CommandProfileStart, CommandID: "cmd-1"},
		},
		&ErrorMessage{
			Envelope:     Envelope{MessageType: TypeError, RequestID: "r2"},
			ErrorType:    "ValueError",
			ErrorMessage: "x",
		},
		&CreditDropMessage{
			Envelope:     Envelope{MessageType: TypeCreditDrop},
			CreditID:     "c-1",
			CreditPhase:  models.PhaseProfiling,
			CreditDropNs: 1000,
		},
		&CreditPhaseCompleteMessage{
			Envelope:    Envelope{MessageType: TypeCreditPhaseComplete},
			CreditPhase: models.PhaseProfiling,
			Completed:   4,
		},
		&ConversationTurnRequest{
			Envelope:       Envelope{MessageType: TypeConversationTurnRequest},
			ConversationID: "conv-1",
		},
	}

	for _, want := range cases {
		data, err := ToJSON(want)
		if err != nil {
			t.Fatalf("ToJSON(%T): %v", want, err)
		}
		got, err := FromJSON(data)
		if err != nil {
			t.Fatalf("FromJSON(%T): %v", want, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round trip mismatch for %T:\n want %#v\n got  %#v", want, want, got)
		}
	}
}

// TestFromJSONUnknownType ensures an unregistered message_type is a hard
// error rather than a silently-empty struct.
func TestFromJSONUnknownType(t *testing.T) {
	_, err := FromJSON([]byte(`{"message_type":"does_not_exist"}`))
	if err == nil {
		t.Fatal("expected error for unknown message_type")
	}
}

// TestTopicEncoding checks that a subscription to T<END> matches only
// unaddressed messages of type T, and a subscription to T<DELIM>svc-1<END>
// matches only the addressed form.
func TestTopicEncoding(t *testing.T) {
	broadcast := Topic("credit_drop")
	addressed := AddressedTopic("credit_drop", "svc-1")

	if broadcast == addressed {
		t.Fatal("broadcast and addressed topics must differ")
	}

	prefixBroadcast := TopicPrefix("credit_drop")
	if len(addressed) >= len(prefixBroadcast) && addressed[:len(prefixBroadcast)] == prefixBroadcast {
		t.Fatalf("addressed topic %q unexpectedly matches broadcast-only prefix %q", addressed, prefixBroadcast)
	}

	prefixAddressed := TopicPrefixAddressed("credit_drop", "svc-1")
	if len(addressed) < len(prefixAddressed) || addressed[:len(prefixAddressed)] != prefixAddressed {
		t.Fatalf("addressed topic %q does not start with its own prefix %q", addressed, prefixAddressed)
	}
}
