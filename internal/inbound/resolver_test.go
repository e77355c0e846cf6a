package inbound

import "testing"

func TestParseAccept(t *testing.T) {
	r := NewResolver()
	cmd, err := r.Parse("YES a1b2c3d4 please raise my order")
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.Accept || cmd.OrderIDPrefix != "a1b2c3d4" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseDecline(t *testing.T) {
	r := NewResolver()
	cmd, err := r.Parse("no deadbeef12")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Accept || cmd.OrderIDPrefix != "deadbeef12" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	r := NewResolver()
	cmd, err := r.Parse("Yes a1b2c3d4")
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.Accept {
		t.Fatal("expected mixed-case YES to parse as accept")
	}
}

func TestParseRejectsShortToken(t *testing.T) {
	r := NewResolver()
	if _, err := r.Parse("YES a1b2"); err == nil {
		t.Fatal("expected parse error for a token shorter than 8 hex chars")
	}
}

func TestParseRejectsUnrelatedText(t *testing.T) {
	r := NewResolver()
	if _, err := r.Parse("what is the price of silver"); err == nil {
		t.Fatal("expected parse error for non-command text")
	}
	var pe *ParseError
	_, err := r.Parse("hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if pe, _ = err.(*ParseError); pe == nil {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}
