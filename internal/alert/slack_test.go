package alert

import (
	"context"
	"testing"
)

func TestDisabledNotifierIsNoOp(t *testing.T) {
	notifier := NewNotifier(nil, "")
	if notifier.Enabled() {
		t.Fatal("notifier without webhook must be disabled")
	}
	// Must not panic or attempt delivery.
	notifier.BatchFailed(context.Background(), "2025.11.20_14", nil)
}

func TestConfiguredNotifierIsEnabled(t *testing.T) {
	notifier := NewNotifier(nil, "https://hooks.slack.com/services/T000/B000/XXX")
	if !notifier.Enabled() {
		t.Fatal("notifier with webhook must be enabled")
	}
}
