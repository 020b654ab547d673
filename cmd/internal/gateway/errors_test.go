package gateway

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestError_IsGateway(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("create link: %w", &Error{Method: "createChatInviteLink", StatusCode: 400, Code: 400, Description: "Bad Request: not enough rights"})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected errors.Is(err, ErrGateway)")
	}
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected errors.As to *Error")
	}
	if ge.Method != "createChatInviteLink" {
		t.Fatalf("method=%q", ge.Method)
	}
}

func TestError_UnwrapTransport(t *testing.T) {
	t.Parallel()

	err := &Error{Method: "getUpdates", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected transport error to unwrap")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transport", err: &Error{Method: "m", Err: io.EOF}, want: true},
		{name: "rate limited", err: &Error{Method: "m", StatusCode: 429, Code: 429}, want: true},
		{name: "server", err: &Error{Method: "m", StatusCode: 502}, want: true},
		{name: "bad request", err: &Error{Method: "m", StatusCode: 400, Code: 400}, want: false},
		{name: "forbidden", err: &Error{Method: "m", StatusCode: 403, Code: 403}, want: false},
		{name: "not gateway", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v)=%v want=%v", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Status
		present bool
	}{
		{in: "member", want: StatusMember, present: true},
		{in: "administrator", want: StatusAdministrator, present: true},
		{in: "CREATOR", want: StatusCreator, present: true},
		{in: "restricted", want: StatusRestricted, present: false},
		{in: "left", want: StatusLeft, present: false},
		{in: "kicked", want: StatusKicked, present: false},
		{in: "", want: StatusNotFound, present: false},
		{in: "banned", want: StatusNotFound, present: false},
	}

	for _, tc := range cases {
		got := ParseStatus(tc.in)
		if got != tc.want {
			t.Fatalf("ParseStatus(%q)=%q want=%q", tc.in, got, tc.want)
		}
		if got.Present() != tc.present {
			t.Fatalf("%q.Present()=%v want=%v", got, got.Present(), tc.present)
		}
	}
}
