package conversation

import (
	"strings"
	"testing"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestAddUserAndAssistantMessages(t *testing.T) {
	c := New()
	c.AddUserText("hello")
	c.AddAssistantMessage("hi there")

	msgs := c.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != message.RoleUser || msgs[0].Flatten() != "hello" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != message.RoleAssistant || msgs[1].Flatten() != "hi there" {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}
}

func TestAddGadgetCallResultCarriesEndMarker(t *testing.T) {
	c := New()
	c.AddGadgetCallResult("Echo", "1", "E:hi", nil)

	msgs := c.GetMessages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	body := msgs[0].Flatten()
	if !strings.HasPrefix(body, "<<<GADGET_END>>>Echo:1\n") {
		t.Fatalf("body = %q", body)
	}
	if !strings.Contains(body, "E:hi") {
		t.Fatalf("body missing result content: %q", body)
	}
}

func TestReplacePrefixCollapsesHistory(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.AddUserText("turn")
	}
	summary := message.NewText(message.RoleAssistant, "summary of 3 turns")
	if err := c.ReplacePrefix(3, summary); err != nil {
		t.Fatalf("ReplacePrefix: %v", err)
	}
	msgs := c.GetMessages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (1 summary + 2 remaining)", len(msgs))
	}
	if msgs[0].Flatten() != "summary of 3 turns" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
}

func TestReplacePrefixRejectsOutOfRange(t *testing.T) {
	c := New()
	c.AddUserText("one")
	if err := c.ReplacePrefix(5, message.NewText(message.RoleAssistant, "x")); err == nil {
		t.Fatal("expected error for out-of-range prefix length")
	}
}

func TestGetMessagesReturnsCopy(t *testing.T) {
	c := New()
	c.AddUserText("one")
	msgs := c.GetMessages()
	msgs[0] = message.NewText(message.RoleUser, "mutated")
	if c.GetMessages()[0].Flatten() != "one" {
		t.Fatal("GetMessages must return an independent copy")
	}
}
