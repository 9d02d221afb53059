package tournament

// Pairing is one scheduled game. Every ordered pair plays so each
// strategy gets equal time in the first-move seat.
type Pairing struct {
	Round int
	P1    string
	P2    string
}

// roundRobinPairs schedules rounds full double round-robins. Each round
// holds p*(p-1) pairings.
func roundRobinPairs(participants []string, rounds int) []Pairing {
	var out []Pairing
	for round := 1; round <= rounds; round++ {
		for _, a := range participants {
			for _, b := range participants {
				if a == b {
					continue
				}
				out = append(out, Pairing{Round: round, P1: a, P2: b})
			}
		}
	}
	return out
}

// evaluationPairs schedules target against each benchmark in both
// seats, per round.
func evaluationPairs(target string, benchmarks []string, rounds int) []Pairing {
	var out []Pairing
	for round := 1; round <= rounds; round++ {
		for _, b := range benchmarks {
			if b == target {
				continue
			}
			out = append(out,
				Pairing{Round: round, P1: target, P2: b},
				Pairing{Round: round, P1: b, P2: target},
			)
		}
	}
	return out
}
