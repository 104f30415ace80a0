package logging

import (
	"testing"

	"github.com/grussorusso/digestledge/utils"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty", false)
	utils.AssertNonNil(t, err)
}

func TestNewHonoursLevel(t *testing.T) {
	l, err := New("warn", true)
	utils.AssertNil(t, err)
	utils.AssertFalse(t, l.Core().Enabled(-1))
	utils.AssertTrue(t, l.Core().Enabled(1))
}
