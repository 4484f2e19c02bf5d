package session

import "testing"

func TestAppendTurnGrowsBothBuffers(t *testing.T) {
	s := New("call-1", Profile{DisplayName: "Grete Müller"}, Memory{}, 6)
	s.AppendTurn(RoleCaller, "Hallo")
	s.AppendTurn(RoleAgent, "Hallo zurück")

	if s.ShortBufferLen() != 2 {
		t.Fatalf("expected short buffer len 2, got %d", s.ShortBufferLen())
	}
	if len(s.FullConversation()) != 2 {
		t.Fatalf("expected full conversation len 2, got %d", len(s.FullConversation()))
	}
}

func TestShortBufferBoundedOverflowDropsOldest(t *testing.T) {
	s := New("call-1", Profile{}, Memory{}, 2)
	s.AppendTurn(RoleCaller, "one")
	s.AppendTurn(RoleAgent, "two")
	s.AppendTurn(RoleCaller, "three")

	buf := s.ShortBuffer()
	if len(buf) != 2 {
		t.Fatalf("expected bounded short buffer of 2, got %d", len(buf))
	}
	if buf[0].Content != "two" || buf[1].Content != "three" {
		t.Fatalf("expected oldest turn dropped, got %+v", buf)
	}
	// full transcript retains everything
	if len(s.FullConversation()) != 3 {
		t.Fatalf("expected full conversation unbounded, got %d", len(s.FullConversation()))
	}
}

func TestFullTranscriptRendersRoleLines(t *testing.T) {
	s := New("call-1", Profile{}, Memory{}, 6)
	s.AppendTurn(RoleCaller, "Hallo, wie geht es dir?")
	s.AppendTurn(RoleAgent, "Mir geht es gut, danke.")

	want := "caller: Hallo, wie geht es dir?\nagent: Mir geht es gut, danke."
	if got := s.FullTranscript(); got != want {
		t.Fatalf("unexpected transcript:\n%s\nwant:\n%s", got, want)
	}
}

func TestFirstNameDerivation(t *testing.T) {
	cases := []struct {
		display string
		want    string
	}{
		{"Grete Müller", "Grete"},
		{"Hans", "Hans"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		p := Profile{DisplayName: c.display}
		if got := p.FirstName(); got != c.want {
			t.Errorf("FirstName(%q) = %q, want %q", c.display, got, c.want)
		}
	}
}

func TestDefaultMaxShortTurns(t *testing.T) {
	s := New("call-1", Profile{}, Memory{}, 0)
	for i := 0; i < 10; i++ {
		s.AppendTurn(RoleCaller, "x")
	}
	if s.ShortBufferLen() != 6 {
		t.Fatalf("expected default bound of 6, got %d", s.ShortBufferLen())
	}
}
