package kit

import (
	"context"
	"errors"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	ep := func(ctx context.Context, req any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(ep)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatalf("chained: %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp: got %v", resp)
	}

	want := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChain_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	noop := func(next Endpoint) Endpoint { return next }

	ep := func(ctx context.Context, req any) (any, error) { return nil, boom }

	if _, err := Chain(noop, noop)(ep)(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err: got %v, want %v", err, boom)
	}
}
