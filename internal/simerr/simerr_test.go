package simerr

import (
	"errors"
	"testing"
)

func TestConfigErrorIsAndAs(t *testing.T) {
	err := NewConfigError("max_time", errors.New("must be positive"))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected errors.Is(err, ErrConfig)")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected errors.As to find *ConfigError")
	}
	if ce.Field != "max_time" {
		t.Fatalf("Field = %q, want %q", ce.Field, "max_time")
	}
}

func TestImplementationErrorIs(t *testing.T) {
	err := NewImplementationError("robot-0", "physics", errors.New("divide by zero"))
	if !errors.Is(err, ErrImplementation) {
		t.Fatalf("expected errors.Is(err, ErrImplementation)")
	}
}

func TestServiceErrorKinds(t *testing.T) {
	cases := []struct {
		kind ServiceErrorKind
		want error
	}{
		{ServiceClosed, ErrServiceClosed},
		{ServiceClientSide, ErrServiceClientSide},
		{ServiceOther, ErrServiceOther},
	}
	for _, c := range cases {
		err := NewServiceError("navigate", c.kind, nil)
		if !errors.Is(err, c.want) {
			t.Fatalf("kind %v: expected errors.Is to match %v", c.kind, c.want)
		}
	}
}

func TestNetworkErrorKinds(t *testing.T) {
	cases := []struct {
		kind NetworkErrorKind
		want error
	}{
		{NetworkChannelNotFound, ErrChannelNotFound},
		{NetworkClosedChannel, ErrClosedChannel},
		{NetworkNodeUnknown, ErrNodeUnknown},
	}
	for _, c := range cases {
		err := NewNetworkError(c.kind, "/robot/0")
		if !errors.Is(err, c.want) {
			t.Fatalf("kind %v: expected errors.Is to match %v", c.kind, c.want)
		}
	}
}
