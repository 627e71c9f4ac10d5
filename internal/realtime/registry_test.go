package realtime

import (
	"fmt"
	"sync"
	"testing"
)

func TestSessionKey(t *testing.T) {
	if got := SessionKey("42"); got != "user_42" {
		t.Errorf("SessionKey(42) = %q, want user_42", got)
	}
}

func TestRegistry_JoinBroadcastLeave(t *testing.T) {
	r := NewRegistry()
	a1 := &fakeMember{id: "a1"}
	a2 := &fakeMember{id: "a2"}
	b1 := &fakeMember{id: "b1"}

	r.Join("user_A", a1)
	r.Join("user_A", a2)
	r.Join("user_B", b1)

	if n := r.Broadcast("user_A", []byte("hi")); n != 2 {
		t.Errorf("Broadcast delivered to %d members, want 2", n)
	}
	if len(a1.received()) != 1 || len(a2.received()) != 1 {
		t.Error("both A connections should receive the broadcast")
	}
	if len(b1.received()) != 0 {
		t.Error("user B must not receive user A's broadcast")
	}

	r.Leave("user_A", a1)
	r.Broadcast("user_A", []byte("again"))
	if len(a1.received()) != 1 {
		t.Error("a member that left must not receive broadcasts")
	}
	if len(a2.received()) != 2 {
		t.Errorf("a2 received %d payloads, want 2", len(a2.received()))
	}
}

func TestRegistry_JoinTwiceIsIdempotent(t *testing.T) {
	r := NewRegistry()
	m := &fakeMember{id: "m"}

	r.Join("user_1", m)
	r.Join("user_1", m)

	if got := r.MemberCount(); got != 1 {
		t.Errorf("MemberCount() = %d, want 1", got)
	}
	if n := r.Broadcast("user_1", []byte("x")); n != 1 {
		t.Errorf("Broadcast delivered %d times, want 1", n)
	}
}

func TestRegistry_LeaveRemovesEmptySession(t *testing.T) {
	r := NewRegistry()
	m := &fakeMember{id: "m"}

	r.Join("user_1", m)
	if got := r.SessionCount(); got != 1 {
		t.Fatalf("SessionCount() = %d, want 1", got)
	}

	r.Leave("user_1", m)
	if got := r.SessionCount(); got != 0 {
		t.Errorf("SessionCount() after last leave = %d, want 0", got)
	}
	if members := r.Members("user_1"); len(members) != 0 {
		t.Errorf("Members() = %v, want empty", members)
	}
}

func TestRegistry_LeaveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	joined := &fakeMember{id: "joined"}
	stranger := &fakeMember{id: "stranger"}

	r.Leave("user_none", stranger)
	r.Join("user_1", joined)
	r.Leave("user_1", stranger)

	if got := r.MemberCount(); got != 1 {
		t.Errorf("MemberCount() = %d, want 1", got)
	}
}

func TestRegistry_BroadcastEmptySession(t *testing.T) {
	r := NewRegistry()
	if n := r.Broadcast("user_nobody", []byte("x")); n != 0 {
		t.Errorf("Broadcast to empty session delivered %d, want 0", n)
	}
}

func TestRegistry_BroadcastSkipsRefusingMember(t *testing.T) {
	r := NewRegistry()
	slow := &fakeMember{id: "slow", refuse: true}
	ok := &fakeMember{id: "ok"}
	r.Join("user_1", slow)
	r.Join("user_1", ok)

	if n := r.Broadcast("user_1", []byte("x")); n != 1 {
		t.Errorf("Broadcast delivered %d, want 1", n)
	}
	if len(ok.received()) != 1 {
		t.Error("healthy member should still receive the payload")
	}
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			m := &fakeMember{id: fmt.Sprintf("m%d", w)}
			key := SessionKey(fmt.Sprintf("%d", w%4))
			for i := 0; i < rounds; i++ {
				r.Join(key, m)
				r.Broadcast(key, []byte("tick"))
				r.Leave(key, m)
			}
		}(w)
	}
	wg.Wait()

	if got := r.MemberCount(); got != 0 {
		t.Errorf("MemberCount() = %d after all members left, want 0", got)
	}
	if got := r.SessionCount(); got != 0 {
		t.Errorf("SessionCount() = %d after all members left, want 0", got)
	}
}

func TestRegistry_ConcurrentJoinKeepsEveryMember(t *testing.T) {
	r := NewRegistry()
	const n = 64

	members := make([]*fakeMember, n)
	var wg sync.WaitGroup
	for i := range members {
		members[i] = &fakeMember{id: fmt.Sprintf("m%d", i)}
		wg.Add(1)
		go func(m *fakeMember) {
			defer wg.Done()
			r.Join("user_1", m)
		}(members[i])
	}
	wg.Wait()

	if got := r.Broadcast("user_1", []byte("x")); got != n {
		t.Errorf("Broadcast delivered %d, want %d", got, n)
	}
}
