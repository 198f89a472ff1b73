package classifier

import (
	"math"
	"testing"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestLive(t *testing.T) {
	cases := []struct {
		v    float64
		want domain.Label
	}{
		{0.49, domain.LabelBuy},
		{0.5, domain.LabelStrongBuy},
		{0.0, domain.LabelNeutral},
		{-0.1, domain.LabelNeutral},
		{-0.11, domain.LabelSell},
		{-0.5, domain.LabelStrongSell},
		{0.1, domain.LabelBuy},
		{0.0999, domain.LabelNeutral},
		{math.NaN(), domain.LabelUnknown},
		{math.Inf(1), domain.LabelUnknown},
		{math.Inf(-1), domain.LabelUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Live(c.v), "Live(%v)", c.v)
	}
}

func TestSnapshot(t *testing.T) {
	cases := []struct {
		v    float64
		want domain.Label
	}{
		{0.0, domain.LabelBuy},
		{-0.0001, domain.LabelSell},
		{0.5, domain.LabelStrongBuy},
		{0.4999, domain.LabelBuy},
		{-0.5, domain.LabelStrongSell},
		{-0.4999, domain.LabelSell},
		{math.NaN(), domain.LabelUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Snapshot(c.v), "Snapshot(%v)", c.v)
	}
}

func TestPtrVariantsNilIsUnknown(t *testing.T) {
	assert.Equal(t, domain.LabelUnknown, LivePtr(nil))
	assert.Equal(t, domain.LabelUnknown, SnapshotPtr(nil))
}
