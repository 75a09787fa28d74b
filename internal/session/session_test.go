package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

func TestFirstTurnLifecycle(t *testing.T) {
	store := NewStore()

	st := store.Acquire("conv-1")
	if !st.IsFirstTurn() {
		t.Fatal("new conversation should be on its first turn")
	}
	st.CompleteTurn("find login bugs", "Found 2 similar tickets.")
	st.Release()

	st = store.Acquire("conv-1")
	if st.IsFirstTurn() {
		t.Fatal("second acquire should not be first turn")
	}
	if len(st.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(st.History))
	}
	if st.History[0].Role != "user" || st.History[1].Role != "assistant" {
		t.Fatalf("history roles = %s, %s", st.History[0].Role, st.History[1].Role)
	}
	st.Release()
}

func TestMatchesCarryAcrossTurns(t *testing.T) {
	store := NewStore()

	st := store.Acquire("conv-1")
	st.SetMatches([]protocol.MatchedTicket{{Ticket: protocol.Ticket{Key: "SCRUM-42"}, Score: 0.91}})
	st.Release()

	st = store.Acquire("conv-1")
	if len(st.LastMatches) != 1 || st.LastMatches[0].Ticket.Key != "SCRUM-42" {
		t.Fatalf("matches not carried: %+v", st.LastMatches)
	}
	st.ResetMatches()
	if st.LastMatches != nil || st.PendingDecision != "" {
		t.Fatal("reset left state behind")
	}
	st.Release()
}

func TestClearForgetsConversation(t *testing.T) {
	store := NewStore()

	st := store.Acquire("conv-1")
	st.CompleteTurn("hello", "hi")
	st.Release()

	store.Clear("conv-1")
	if store.Count() != 0 {
		t.Fatalf("count after clear = %d", store.Count())
	}

	st = store.Acquire("conv-1")
	if !st.IsFirstTurn() {
		t.Fatal("cleared conversation should restart on first turn")
	}
	st.Release()
}

func TestSameConversationSerializes(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := store.Acquire("conv-1")
			st.CompleteTurn(fmt.Sprintf("turn %d", i), "ok")
			st.Release()
		}(i)
	}
	wg.Wait()

	st := store.Acquire("conv-1")
	defer st.Release()
	if len(st.History) != 100 {
		t.Fatalf("history length = %d, want 100", len(st.History))
	}
}

func TestDistinctConversationsIndependent(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", i)
			st := store.Acquire(id)
			st.CompleteTurn("q", "a")
			st.Release()
		}(i)
	}
	wg.Wait()

	if store.Count() != 20 {
		t.Fatalf("count = %d, want 20", store.Count())
	}
}
