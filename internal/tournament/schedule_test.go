package tournament

import "testing"

func TestRoundRobinPairs(t *testing.T) {
	tests := []struct {
		name         string
		participants []string
		rounds       int
		want         int
	}{
		{"two players one round", []string{"a", "b"}, 1, 2},
		{"three players one round", []string{"a", "b", "c"}, 1, 6},
		{"three players two rounds", []string{"a", "b", "c"}, 2, 12},
		{"four players three rounds", []string{"a", "b", "c", "d"}, 3, 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := roundRobinPairs(tt.participants, tt.rounds)
			if len(pairs) != tt.want {
				t.Fatalf("expected %d pairings, got %d", tt.want, len(pairs))
			}
			for _, p := range pairs {
				if p.P1 == p.P2 {
					t.Fatalf("self pairing: %+v", p)
				}
				if p.Round < 1 || p.Round > tt.rounds {
					t.Fatalf("round out of range: %+v", p)
				}
			}
		})
	}
}

func TestRoundRobinBothSeats(t *testing.T) {
	pairs := roundRobinPairs([]string{"a", "b"}, 1)
	seats := map[string]bool{}
	for _, p := range pairs {
		seats[p.P1+">"+p.P2] = true
	}
	if !seats["a>b"] || !seats["b>a"] {
		t.Fatalf("expected both seat orders, got %v", seats)
	}
}

func TestEvaluationPairs(t *testing.T) {
	pairs := evaluationPairs("target", []string{"b1", "b2", "target"}, 2)
	// The target never plays itself; two benchmarks, both seats, two rounds.
	if len(pairs) != 8 {
		t.Fatalf("expected 8 pairings, got %d", len(pairs))
	}
	targetGames := 0
	for _, p := range pairs {
		if p.P1 == p.P2 {
			t.Fatalf("self pairing: %+v", p)
		}
		if p.P1 == "target" || p.P2 == "target" {
			targetGames++
		}
	}
	if targetGames != len(pairs) {
		t.Fatal("every evaluation game must include the target")
	}
}
