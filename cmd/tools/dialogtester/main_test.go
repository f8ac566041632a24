package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/service/generation/generationtest"
)

func TestRunPrintsEachOutcome(t *testing.T) {
	script := generationtest.New(
		generationtest.Questions("Which rooms?"),
		generationtest.Questions("ignored"),
		generationtest.Invoice("Dana Reyes", 300),
	)
	controller := dialog.NewController(script, dialogmodel.NewMemoryStore(), dialog.Options{})

	in := strings.NewReader("Painted two rooms\n\nKitchen only\n")
	var out bytes.Buffer
	if err := run(context.Background(), controller, "", in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "问题 1/1: Which rooms?") {
		t.Fatalf("missing question line in %q", got)
	}
	if !strings.Contains(got, `"client": "Dana Reyes"`) {
		t.Fatalf("missing invoice in %q", got)
	}
	if script.Calls() != 3 {
		t.Fatalf("expected 3 generation calls, got %d", script.Calls())
	}
}
