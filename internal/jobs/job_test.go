package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// assertJSONEqual compares two JSON documents ignoring key order and whitespace.
func assertJSONEqual(t *testing.T, want, got string) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expected JSON %q: %v", want, err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("bad JSON %q: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Fatalf("JSON mismatch:\nwant %s\ngot  %s", want, got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		payload string
		field   string // empty means valid
	}{
		{"notify ok", KindNotifyTransaction, `{"user_id":1,"transaction_id":2}`, ""},
		{"notify missing tx", KindNotifyTransaction, `{"user_id":1}`, "transaction_id"},
		{"notify negative user", KindNotifyTransaction, `{"user_id":-1,"transaction_id":2}`, "user_id"},
		{"notify unknown field", KindNotifyTransaction, `{"user_id":1,"transaction_id":2,"extra":true}`, "payload"},
		{"notify wrong type", KindNotifyTransaction, `{"user_id":"one","transaction_id":2}`, "payload"},
		{"summary ok", KindSummarizeMonth, `{"user_id":1,"month":12,"year":2025}`, ""},
		{"summary month 0", KindSummarizeMonth, `{"user_id":1,"month":0,"year":2025}`, "month"},
		{"summary month 13", KindSummarizeMonth, `{"user_id":1,"month":13,"year":2025}`, "month"},
		{"summary year too old", KindSummarizeMonth, `{"user_id":1,"month":1,"year":1969}`, "year"},
		{"fetch empty object", KindFetchMarketData, `{}`, ""},
		{"fetch empty payload", KindFetchMarketData, ``, ""},
		{"fetch symbols", KindFetchMarketData, `{"symbols":["AAPL","btc-usd"]}`, ""},
		{"fetch blank symbol", KindFetchMarketData, `{"symbols":["AAPL"," "]}`, "symbols[1]"},
		{"unknown kind", Kind("mine_bitcoin"), `{}`, "kind"},
		{"not json", KindNotifyTransaction, `{{`, "payload"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.kind, json.RawMessage(tc.payload))
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want *ValidationError, got %v", err)
			}
			if ve.Field != tc.field || ve.Kind != tc.kind {
				t.Fatalf("got field=%q kind=%q", ve.Field, ve.Kind)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	job := Job{Kind: KindSummarizeMonth, Payload: json.RawMessage(`{"user_id":7,"month":3,"year":2024}`)}
	var p SummarizeMonthPayload
	if err := Decode(job, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p != (SummarizeMonthPayload{UserID: 7, Month: 3, Year: 2024}) {
		t.Fatalf("got %+v", p)
	}

	job.Payload = json.RawMessage(`{"user_id":7,"month":30,"year":2024}`)
	if err := Decode(job, &p); err == nil {
		t.Fatalf("expected a validation error for month 30")
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("smtp down")
	err := &ExecutionError{JobID: "j1", Kind: KindNotifyTransaction, Attempts: 3, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not unwrapped")
	}
	if !strings.Contains(err.Error(), "after 3 attempt(s)") {
		t.Fatalf("message %q", err.Error())
	}
}

func TestEncodePayload(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, `{}`},
		{"map", map[string]any{"user_id": 1}, `{"user_id":1}`},
		{"bytes", []byte(`{"a":1}`), `{"a":1}`},
		{"raw", json.RawMessage(` {"a":1} `), `{"a":1}`},
		{"blank raw", json.RawMessage(""), `{}`},
		{"whitespace raw", json.RawMessage("  \n"), `{}`},
		{"null raw", json.RawMessage("null"), `{}`},
		{"empty bytes", []byte{}, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := encodePayload(tc.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if string(raw) != tc.want {
				t.Fatalf("got %q, want %q", raw, tc.want)
			}
		})
	}

	if _, err := encodePayload(make(chan int)); err == nil {
		t.Fatalf("expected an error for an unencodable payload")
	}
}

func TestSubmit_BlankRawPayloadIsEmptyObject(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewRedisQueue(client, "test:jobs")
	d := NewDispatcher(q)
	ctx := context.Background()

	for _, payload := range []json.RawMessage{nil, json.RawMessage(""), json.RawMessage("null")} {
		if _, err := d.Submit(ctx, KindFetchMarketData, payload); err != nil {
			t.Fatalf("submit %q: %v", payload, err)
		}
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if string(job.Payload) != `{}` {
			t.Fatalf("stored payload %q", job.Payload)
		}
	}
}
