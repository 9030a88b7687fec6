package detector

// VoteTable accumulates recognized candidates per track. The winner for a
// track is always a highest-count candidate; on a tie the candidate that
// received the most recent vote wins.
type VoteTable struct {
	counts  map[string]map[string]int
	winners map[string]string
}

func NewVoteTable() *VoteTable {
	return &VoteTable{
		counts:  make(map[string]map[string]int),
		winners: make(map[string]string),
	}
}

// Vote records one vote for text on trackID and returns the current winner.
func (v *VoteTable) Vote(trackID, text string) string {
	counts, ok := v.counts[trackID]
	if !ok {
		counts = make(map[string]int)
		v.counts[trackID] = counts
	}
	counts[text]++

	winner, ok := v.winners[trackID]
	if !ok || counts[text] >= counts[winner] {
		winner = text
		v.winners[trackID] = winner
	}
	return winner
}

func (v *VoteTable) Winner(trackID string) (string, bool) {
	w, ok := v.winners[trackID]
	return w, ok
}

// Count returns the number of votes the current winner holds.
func (v *VoteTable) Count(trackID string) int {
	w, ok := v.winners[trackID]
	if !ok {
		return 0
	}
	return v.counts[trackID][w]
}

// Counts returns a copy of the candidate counts for trackID.
func (v *VoteTable) Counts(trackID string) map[string]int {
	out := make(map[string]int, len(v.counts[trackID]))
	for k, n := range v.counts[trackID] {
		out[k] = n
	}
	return out
}

func (v *VoteTable) Forget(trackID string) {
	delete(v.counts, trackID)
	delete(v.winners, trackID)
}

func (v *VoteTable) Len() int { return len(v.counts) }
