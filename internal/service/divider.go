package service

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrSplitExhausted is returned by Split.Next once every share was taken.
var ErrSplitExhausted = errors.New("split exhausted")

// AmountDivider splits a total into bounded random shares.  A recipient
// gets at least half of an even share (minAmount) and at most half the
// total on top of that (maxAmount).  For 10000 over 4 recipients every
// share but the last falls in [1250, 6250].
type AmountDivider struct {
	src RandomSource
}

// NewAmountDivider returns a divider drawing from src.  A nil src selects
// the shared package-level source.
func NewAmountDivider(src RandomSource) *AmountDivider {
	if src == nil {
		src = globalSource{}
	}
	return &AmountDivider{src: src}
}

// Split is the result of one division.  It yields exactly n shares, in
// order, and cannot be rewound.
type Split struct {
	MinAmount int64
	MaxAmount int64
	amounts   []int64
	next      int
}

// Divide splits total into n shares summing exactly to total.  Callers
// must ensure total >= n >= 1.
//
// The first n-1 shares are drawn from
// [minAmount, min(maxAmount+1, remaining-after*minAmount)) so that every
// later share can still receive minAmount; the last share takes whatever
// is left.  When total < 2n minAmount is zero and the draw floor is
// raised to 1 (reserving 1 per later share) so that no share is empty.
func (d *AmountDivider) Divide(total int64, n int) *Split {
	minAmount := total / int64(n) / 2
	maxAmount := total/2 + minAmount
	s := &Split{MinAmount: minAmount, MaxAmount: maxAmount, amounts: make([]int64, n)}

	floor := minAmount
	reserve := minAmount
	if floor == 0 {
		floor = 1
		reserve = 1
	}

	remaining := total
	for i := 0; i < n; i++ {
		if i == n-1 {
			s.amounts[i] = remaining
			break
		}
		after := int64(n - i - 1)
		upper := remaining - after*reserve
		if minAmount == 0 {
			// largest draw still leaves 1 for each later share
			upper++
		}
		if upper > maxAmount+1 {
			upper = maxAmount + 1
		}
		s.amounts[i] = floor + d.src.Int64N(upper-floor)
		remaining -= s.amounts[i]
	}
	logrus.WithFields(logrus.Fields{"total": total, "recipients": n}).
		Debugf("money divided into %v", s.amounts)
	return s
}

// Next returns the next share, or ErrSplitExhausted after the last one.
func (s *Split) Next() (int64, error) {
	if s.next >= len(s.amounts) {
		return 0, ErrSplitExhausted
	}
	v := s.amounts[s.next]
	s.next++
	return v, nil
}

// Len is the total number of shares in the split.
func (s *Split) Len() int { return len(s.amounts) }
