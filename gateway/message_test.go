package gateway

import (
	"testing"

	"quizduel-server/duel"
)

func TestClassifyChatPrefix(t *testing.T) {
	e := classify("u1", "MessageToChat hello there")
	if e.Kind != duel.EventChat || e.Payload != "hello there" {
		t.Fatalf("got %+v", e)
	}
}

func TestClassifyEmojiPrefix(t *testing.T) {
	e := classify("u1", "SendEmoji \xF0\x9F\x98\x80")
	if e.Kind != duel.EventEmoji {
		t.Fatalf("got %+v", e)
	}
}

func TestClassifyDefaultIsAnswer(t *testing.T) {
	e := classify("u1", "42")
	if e.Kind != duel.EventAnswer || e.Payload != "42" {
		t.Fatalf("got %+v", e)
	}
}

func TestClassifyCarriesUserID(t *testing.T) {
	e := classify("alice", "some answer")
	if e.UserID != "alice" {
		t.Fatalf("got %+v", e)
	}
}
