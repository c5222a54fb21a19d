package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"modwarden/internal/handler"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishDeliversArgs(t *testing.T) {
	bus := NewBus()
	var got []any
	bus.Subscribe("MESSAGE_DELETE", false, func(_ context.Context, n handler.Notification, args ...any) {
		got = append(got, n.Identifier())
		got = append(got, args...)
	})

	delivered := bus.Publish(context.Background(), "MESSAGE_DELETE", EventNotification{Name: "MESSAGE_DELETE"}, "payload")
	if delivered != 1 {
		t.Fatalf("expected one delivery, got %d", delivered)
	}
	if len(got) != 2 || got[0] != "MESSAGE_DELETE" || got[1] != "payload" {
		t.Fatalf("unexpected delivery %v", got)
	}
	if bus.Publish(context.Background(), "OTHER", EventNotification{Name: "OTHER"}) != 0 {
		t.Fatalf("expected no delivery for unknown category")
	}
}

func TestOnceListenerFiresOnceUnderConcurrency(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	bus.Subscribe("READY", true, func(context.Context, handler.Notification, ...any) {
		calls.Add(1)
	})
	bus.Subscribe("READY", false, func(context.Context, handler.Notification, ...any) {})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), "READY", EventNotification{Name: "READY"})
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("once listener ran %d times", calls.Load())
	}
	if bus.ListenerCount("READY") != 1 {
		t.Fatalf("expected persistent listener to remain, got %d", bus.ListenerCount("READY"))
	}
}

func TestCancelAndUnsubscribeAll(t *testing.T) {
	bus := NewBus()
	noop := func(context.Context, handler.Notification, ...any) {}
	cancel := bus.Subscribe("interaction:button", false, noop)
	bus.Subscribe("interaction:button", false, noop)

	cancel()
	if bus.ListenerCount("interaction:button") != 1 {
		t.Fatalf("cancel should remove one listener")
	}
	cancel()
	if bus.ListenerCount("interaction:button") != 1 {
		t.Fatalf("second cancel must be a no-op")
	}
	bus.UnsubscribeAll("interaction:button")
	if bus.ListenerCount("interaction:button") != 0 {
		t.Fatalf("expected empty category")
	}
}

func TestDispatcherReloadOnBus(t *testing.T) {
	bus := NewBus()
	loader := handler.NewLoader(handler.KindButton, handler.NewRegistry(handler.KindButton), nil)
	loader.Register(&handler.Definition{
		Identifier: "embed",
		Invoke:     func(context.Context, handler.Notification, ...any) error { return nil },
	})
	dispatcher := handler.NewDispatcher(loader, bus, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := dispatcher.Reload(""); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	if n := bus.ListenerCount(handler.KindButton.Category()); n != 1 {
		t.Fatalf("expected one category listener, got %d", n)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		event *discordgo.InteractionCreate
		kind  handler.Kind
		ok    bool
	}{
		{&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "ping"},
		}}, handler.KindCommand, true},
		{&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: "embed:send", ComponentType: discordgo.ButtonComponent},
		}}, handler.KindButton, true},
		{&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: "rolemenu", ComponentType: discordgo.SelectMenuComponent},
		}}, handler.KindMenu, true},
		{&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionModalSubmit,
			Data: discordgo.ModalSubmitInteractionData{CustomID: "embedmodal"},
		}}, handler.KindModal, true},
		{&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}}, "", false},
	}
	for _, tc := range cases {
		kind, ok := Classify(tc.event)
		if kind != tc.kind || ok != tc.ok {
			t.Fatalf("Classify(%v) = %q %v, want %q %v", tc.event.Type, kind, ok, tc.kind, tc.ok)
		}
	}
}
