package privilege

import "testing"

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		Real:      "real",
		Effective: "effective",
		Original:  "original",
		Mode(99):  "unknown",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, got, want)
		}
	}
}

func TestGuardReentrantSameToken(t *testing.T) {
	g := NewGuard()
	tok := g.Enter(nil)
	tok2 := g.Enter(tok)
	if tok2 != tok {
		t.Fatalf("expected re-entrant Enter to return same token")
	}
	g.Leave(tok2)
	g.Leave(tok)
}

func TestGuardSerializesDistinctTokens(t *testing.T) {
	g := NewGuard()
	tok := g.Enter(nil)

	done := make(chan struct{})
	go func() {
		other := g.Enter(nil)
		g.Leave(other)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second Enter should have blocked while first token held the guard")
	default:
	}

	g.Leave(tok)
	<-done
}
