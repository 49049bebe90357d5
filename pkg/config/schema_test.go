package config

import "testing"

func TestExpectationValidatorAcceptsValidDocument(t *testing.T) {
	v := NewExpectationValidator()
	doc := `{"id": "e1", "matcher": {"method": "GET"}, "action": {"kind": "Response"}}`
	if err := v.Validate([]byte(doc)); err != nil {
		t.Fatalf("expected valid document to pass, got %v", err)
	}
}

func TestExpectationValidatorRejectsMissingID(t *testing.T) {
	v := NewExpectationValidator()
	doc := `{"matcher": {"method": "GET"}, "action": {"kind": "Response"}}`
	if err := v.Validate([]byte(doc)); err == nil {
		t.Fatal("expected an error for a document missing id")
	}
}

func TestExpectationValidatorRejectsUnknownActionKind(t *testing.T) {
	v := NewExpectationValidator()
	doc := `{"id": "e1", "matcher": {}, "action": {"kind": "Teleport"}}`
	if err := v.Validate([]byte(doc)); err == nil {
		t.Fatal("expected an error for an unknown action kind")
	}
}

func TestExpectationValidatorRejectsMalformedJSON(t *testing.T) {
	v := NewExpectationValidator()
	if err := v.Validate([]byte("not json")); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
