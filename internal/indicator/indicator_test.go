package indicator

import (
	"errors"
	"strings"
	"testing"
)

type fakePin struct {
	name string
	log  *[]string
	err  error
}

func (p fakePin) Set(high bool) error {
	v := "lo"
	if high {
		v = "hi"
	}
	*p.log = append(*p.log, p.name+"="+v)
	return p.err
}

func newPair(activeLow bool) (Pair, *[]string) {
	var log []string
	return Pair{
		Pass: FromPin(fakePin{name: "pass", log: &log}, activeLow),
		Fail: FromPin(fakePin{name: "fail", log: &log}, activeLow),
	}, &log
}

func TestShow_ExactlyOneLit(t *testing.T) {
	p, log := newPair(false)
	if err := p.Show(true); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := strings.Join(*log, ","); got != "fail=lo,pass=hi" {
		t.Fatalf("got %s", got)
	}

	*log = nil
	if err := p.Show(false); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := strings.Join(*log, ","); got != "pass=lo,fail=hi" {
		t.Fatalf("got %s", got)
	}
}

func TestClear_ActiveLow(t *testing.T) {
	p, log := newPair(true)
	if err := p.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := strings.Join(*log, ","); got != "pass=hi,fail=hi" {
		t.Fatalf("got %s", got)
	}
}

func TestShow_ReportsErrorAndStillDrivesOtherLamp(t *testing.T) {
	var log []string
	p := Pair{
		Pass: FromPin(fakePin{name: "pass", log: &log, err: errors.New("nack")}, false),
		Fail: FromPin(fakePin{name: "fail", log: &log}, false),
	}
	if err := p.Show(false); err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Join(log, ","); got != "pass=lo,fail=hi" {
		t.Fatalf("got %s", got)
	}
}

type closingOutput struct {
	on     bool
	closed bool
}

func (c *closingOutput) Set(on bool) error {
	c.on = on
	return nil
}

func (c *closingOutput) Close() error {
	c.closed = true
	return nil
}

func TestClose_TurnsOffAndReleases(t *testing.T) {
	pass, fail := &closingOutput{on: true}, &closingOutput{}
	p := Pair{Pass: pass, Fail: fail}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pass.on || !pass.closed || !fail.closed {
		t.Fatalf("pass=%+v fail=%+v", pass, fail)
	}
}

func TestNilOutputsAreSkipped(t *testing.T) {
	if err := (Pair{}).Show(true); err != nil {
		t.Fatalf("Show: %v", err)
	}
}
