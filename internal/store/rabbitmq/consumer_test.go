package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDecode(t *testing.T) {
	n, err := Decode([]byte(`{"id":"01J","user_id":7,"title":"Medicine reminder","body":"Aspirin (08:00)"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.UserID != 7 || n.Body != "Aspirin (08:00)" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	if _, err := Decode([]byte(`{"title":"x"}`)); err == nil {
		t.Fatalf("expected error for missing user_id")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestAttemptOf(t *testing.T) {
	if got := attemptOf(nil); got != 1 {
		t.Fatalf("missing header should count as first attempt, got %d", got)
	}
	if got := attemptOf(amqp.Table{attemptHeader: int32(3)}); got != 3 {
		t.Fatalf("got %d", got)
	}
	if got := attemptOf(amqp.Table{attemptHeader: int64(2)}); got != 2 {
		t.Fatalf("got %d", got)
	}
}
