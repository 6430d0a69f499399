package ping

import (
	"context"
	"testing"
)

func TestRunResultShape(t *testing.T) {
	res := New().Run(context.Background(), "get", nil)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if len(res.Result) != 1 || res.Result["pong"] != true {
		t.Errorf("result must be exactly {pong:true}, got %v", res.Result)
	}
}
