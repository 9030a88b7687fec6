package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoteTableMajority(t *testing.T) {
	v := NewVoteTable()
	v.Vote("7", "B1234AB")
	v.Vote("7", "B1Z34AB")
	winner := v.Vote("7", "B1234AB")

	assert.Equal(t, "B1234AB", winner)
	assert.Equal(t, map[string]int{"B1234AB": 2, "B1Z34AB": 1}, v.Counts("7"))
	assert.Equal(t, 2, v.Count("7"))
}

func TestVoteTableTieGoesToLatestVote(t *testing.T) {
	v := NewVoteTable()
	assert.Equal(t, "A", v.Vote("1", "A"))
	assert.Equal(t, "B", v.Vote("1", "B"))
	assert.Equal(t, "A", v.Vote("1", "A"))
	assert.Equal(t, "B", v.Vote("1", "B"), "B ties A at 2 and was voted last")
}

func TestVoteTableTracksAreIndependent(t *testing.T) {
	v := NewVoteTable()
	v.Vote("1", "A")
	v.Vote("2", "B")

	w1, _ := v.Winner("1")
	w2, _ := v.Winner("2")
	assert.Equal(t, "A", w1)
	assert.Equal(t, "B", w2)

	v.Forget("1")
	_, ok := v.Winner("1")
	assert.False(t, ok)
	assert.Equal(t, 1, v.Len())
}
