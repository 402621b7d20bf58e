package mention

import "testing"

func TestParse_ValidMention(t *testing.T) {
	text := "[id:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee]\n• alice: @bob hello there..."
	got := Parse("bob", Payload{Text: text}, nil)
	if got == nil {
		t.Fatal("expected a mention")
	}
	if got.ID != "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Errorf("id = %q", got.ID)
	}
	if got.Sender != "alice" {
		t.Errorf("sender = %q", got.Sender)
	}
	if got.Content != text {
		t.Errorf("content should be full payload, got %q", got.Content)
	}
}

func TestParse_StatusPayloadsAreIgnored(t *testing.T) {
	cases := []string{
		"✅ WAIT SUCCESS: Found 1 mentions",
		"No mentions found",
	}
	for _, text := range cases {
		if got := Parse("bob", Payload{Text: text}, nil); got != nil {
			t.Errorf("expected nil for status payload %q, got %+v", text, got)
		}
	}
}

func TestParse_SelfMentionSuppressed(t *testing.T) {
	text := "[id:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee]\n• bob: @bob talking to myself"
	var suppressed string
	got := Parse("bob", Payload{Text: text}, func(sender string) { suppressed = sender })
	if got != nil {
		t.Fatalf("expected nil for self-mention, got %+v", got)
	}
	if suppressed != "bob" {
		t.Errorf("expected onSelfMention callback with bob, got %q", suppressed)
	}
}

func TestParse_NoIDIsIgnored(t *testing.T) {
	text := "• alice: @bob hello"
	if got := Parse("bob", Payload{Text: text}, nil); got != nil {
		t.Errorf("expected nil without an [id:...] tag, got %+v", got)
	}
}

func TestParse_WrongTargetIsIgnored(t *testing.T) {
	text := "[id:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee]\n• alice: @carol hello"
	if got := Parse("bob", Payload{Text: text}, nil); got != nil {
		t.Errorf("expected nil when agent is not mentioned, got %+v", got)
	}
}

func TestParse_EmptyPayload(t *testing.T) {
	if got := Parse("bob", Payload{}, nil); got != nil {
		t.Errorf("expected nil for empty payload, got %+v", got)
	}
}

func TestParse_StructuredEvent(t *testing.T) {
	p := Payload{Events: []event{{ID: "msg-1", SenderName: "alice", Content: "@bob hi"}}}
	got := Parse("bob", p, nil)
	if got == nil || got.ID != "msg-1" || got.Sender != "alice" {
		t.Fatalf("got %+v", got)
	}
}

func TestParse_StructuredEventSelfMention(t *testing.T) {
	p := Payload{Events: []event{{ID: "msg-1", SenderName: "bob", Content: "@bob hi"}}}
	if got := Parse("bob", p, nil); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestParse_WhitespaceVariance(t *testing.T) {
	text := "[id:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee]\n•   alice  :   @bob   hello   there   ..."
	got := Parse("bob", Payload{Text: text}, nil)
	if got == nil {
		t.Fatal("expected a mention despite irregular whitespace")
	}
	if got.Sender != "alice" {
		t.Errorf("sender = %q", got.Sender)
	}
}
