package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

func TestScriptEndpointScoresRow(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`
		function score(row) {
			return { total: row.a + row.b };
		}
	`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	output, err := endpoint.Score(context.Background(), Row{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if fmt.Sprint(output["total"]) != "3" {
		t.Fatalf("expected total 3, got %v", output["total"])
	}
}

func TestScriptEndpointNormalizesScalarReturn(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`function score(row) { return "ok"; }`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	output, err := endpoint.Score(context.Background(), Row{})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if output["value"] != "ok" {
		t.Fatalf("scalar returns should be wrapped under value: %v", output)
	}
}

func TestScriptEndpointSurfacesThrownErrors(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`
		function score(row) {
			throw new Error("boom");
		}
	`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	if _, err := endpoint.Score(context.Background(), Row{}); err == nil {
		t.Fatal("expected error from throwing script")
	} else if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry the script message: %v", err)
	}
}

func TestScriptEndpointRejectsInvalidScript(t *testing.T) {
	if _, err := NewScriptEndpoint("function score(row {", zap.NewNop()); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := NewScriptEndpoint("", zap.NewNop()); err == nil {
		t.Fatal("expected error for empty script")
	}
}

func TestScriptEndpointRequiresScoreFunction(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`var unrelated = 1;`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	if _, err := endpoint.Score(context.Background(), Row{}); err == nil {
		t.Fatal("expected error when score(row) is missing")
	}
}

func TestScriptEndpointInterruptsRunawayScript(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`
		function score(row) {
			while (true) {}
		}
	`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := endpoint.Score(ctx, Row{}); !errors.Is(err, sdkerrors.ErrScriptInterrupted) {
		t.Fatalf("expected ErrScriptInterrupted, got %v", err)
	}
}

func TestScriptEndpointIsSafeForConcurrentUse(t *testing.T) {
	endpoint, err := NewScriptEndpoint(`
		function score(row) {
			return { doubled: row.n * 2 };
		}
	`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScriptEndpoint failed: %v", err)
	}

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func(n int) {
			output, err := endpoint.Score(context.Background(), Row{"n": n})
			if err == nil && fmt.Sprint(output["doubled"]) != fmt.Sprint(n*2) {
				err = fmt.Errorf("wrong result for %d: %v", n, output["doubled"])
			}
			done <- err
		}(i)
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent score failed: %v", err)
		}
	}
}
