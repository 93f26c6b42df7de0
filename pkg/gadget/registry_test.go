package gadget

import (
	"context"
	"encoding/json"
	"testing"
)

type echoGadget struct{ name string }

func (e *echoGadget) Name() string        { return e.name }
func (e *echoGadget) Description() string { return "echoes input" }
func (e *echoGadget) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`)
}
func (e *echoGadget) Examples() []string { return nil }
func (e *echoGadget) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var in struct {
		Msg string `json:"msg"`
	}
	_ = json.Unmarshal(params, &in)
	return Result{Content: "E:" + in.Msg}, nil
}

func TestRegisterLastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := &echoGadget{name: "Echo"}
	second := &echoGadget{name: "Echo"}
	if err := r.Register(&Definition{Gadget: first}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&Definition{Gadget: second}); err != nil {
		t.Fatal(err)
	}
	def, ok := r.Get("Echo")
	if !ok {
		t.Fatal("expected Echo registered")
	}
	if def.Gadget != second {
		t.Fatal("expected last registration to win")
	}
}

func TestValidateParamsRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Definition{Gadget: &echoGadget{name: "Echo"}}); err != nil {
		t.Fatal(err)
	}
	_, err := r.ValidateParams("Echo", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Message == "" {
		t.Fatal("expected non-empty validation message")
	}
}

func TestValidateParamsAccepts(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Definition{Gadget: &echoGadget{name: "Echo"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ValidateParams("Echo", json.RawMessage(`{"msg":"hi"}`)); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Definition{Gadget: &echoGadget{name: "Zeta"}})
	_ = r.Register(&Definition{Gadget: &echoGadget{name: "Alpha"}})
	names := r.Names()
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Zeta" {
		t.Fatalf("expected sorted [Alpha Zeta], got %v", names)
	}
}
