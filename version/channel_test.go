package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrack(t *testing.T) {
	tr, err := ParseTrack("1.32")
	require.NoError(t, err)
	assert.Equal(t, NewTrack(1, 32), tr)

	tr, err = ParseTrack("latest")
	require.NoError(t, err)
	assert.True(t, tr.IsLatest())

	for _, bad := range []string{"", "1", "1.2.3", "a.b", "1.x"} {
		_, err := ParseTrack(bad)
		assert.Error(t, err, bad)
	}
}

func TestTrackCompare(t *testing.T) {
	assert.Equal(t, -1, NewTrack(1, 9).Compare(NewTrack(1, 10)))
	assert.Equal(t, 1, NewTrack(2, 0).Compare(NewTrack(1, 99)))
	assert.Equal(t, 0, NewTrack(1, 32).Compare(NewTrack(1, 32)))
	assert.Equal(t, 1, Latest.Compare(NewTrack(99, 99)))
	assert.Equal(t, -1, NewTrack(99, 99).Compare(Latest))
	assert.Equal(t, 0, Latest.Compare(Latest))
}

func TestTrackMatches(t *testing.T) {
	assert.True(t, NewTrack(1, 32).Matches(MustParse("1.32.5")))
	assert.False(t, NewTrack(1, 32).Matches(MustParse("1.33.0")))
	assert.True(t, Latest.Matches(MustParse("0.1.0")))
}

func TestRisk(t *testing.T) {
	assert.True(t, Stable.MoreMatureThan(Candidate))
	assert.True(t, Candidate.MoreMatureThan(Beta))
	assert.True(t, Beta.MoreMatureThan(Edge))
	assert.False(t, Edge.MoreMatureThan(Stable))
	assert.False(t, Stable.MoreMatureThan(Stable))

	_, err := ParseRisk("nightly")
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		input   string
		want    Channel
		wantErr bool
	}{
		{input: "edge", want: Channel{Track: Latest, Risk: Edge}},
		{input: "1.32", want: Channel{Track: NewTrack(1, 32), Risk: Stable}},
		{input: "1.32/beta", want: Channel{Track: NewTrack(1, 32), Risk: Beta}},
		{input: "latest/stable", want: Channel{Track: Latest, Risk: Stable}},
		{input: "1.32/edge/hotfix", want: Channel{Track: NewTrack(1, 32), Risk: Edge, Branch: "hotfix"}},
		{input: "edge/hotfix", want: Channel{Track: Latest, Risk: Edge, Branch: "hotfix"}},
		{input: "", wantErr: true},
		{input: "1.32/nightly", wantErr: true},
		{input: "foo/edge", wantErr: true},
		{input: "1.32/edge/", wantErr: true},
		{input: "1.32/edge/a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChannel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "latest/edge", MustParseChannel("edge").String())
	assert.Equal(t, "1.32/stable", MustParseChannel("1.32").String())
	assert.Equal(t, "1.32/edge/fix", MustParseChannel("1.32/edge/fix").String())
}

func TestInRange(t *testing.T) {
	min := MustParseChannel("1.28/stable")
	max := MustParseChannel("1.31/stable")
	r := ChannelRange{Min: &min, Max: &max}

	for minor := uint64(20); minor < 40; minor++ {
		c := NewChannel(NewTrack(1, minor), Edge)
		want := minor >= 28 && minor <= 31
		assert.Equal(t, want, InRange(c, r), c.String())
	}

	assert.True(t, InRange(MustParseChannel("latest/edge"), r))
	assert.True(t, InRange(MustParseChannel("edge"), ChannelRange{Min: &max, Max: &min}))
	assert.True(t, InRange(MustParseChannel("1.0/edge"), ChannelRange{}))
	assert.True(t, InRange(MustParseChannel("9.9/edge"), ChannelRange{Min: &min}))
	assert.False(t, InRange(MustParseChannel("1.27/edge"), ChannelRange{Min: &min}))

	filtered := r.Filter([]Channel{
		MustParseChannel("1.27/edge"),
		MustParseChannel("1.29/beta"),
		MustParseChannel("latest/stable"),
		MustParseChannel("1.32/edge"),
	})
	assert.Equal(t, []Channel{MustParseChannel("1.29/beta"), MustParseChannel("latest/stable")}, filtered)
	assert.Equal(t, "[1.28, 1.31]", r.String())
}

func TestMatchedNumericalChannel(t *testing.T) {
	tracks := map[string][]string{
		"latest": {"latest/edge", "latest/stable"},
		"1.30":   {"1.30/edge", "1.30/beta", "1.30/stable"},
		"1.31":   {"1.31/edge", "1.31/beta"},
		"1.9":    {"1.9/stable"},
	}

	ch, ok := MatchedNumericalChannel(Edge, tracks)
	require.True(t, ok)
	assert.Equal(t, "1.31/edge", ch.String())

	ch, ok = MatchedNumericalChannel(Stable, tracks)
	require.True(t, ok)
	assert.Equal(t, "1.30/stable", ch.String())

	_, ok = MatchedNumericalChannel(Candidate, tracks)
	assert.False(t, ok)

	_, ok = MatchedNumericalChannel(Edge, nil)
	assert.False(t, ok)
}
